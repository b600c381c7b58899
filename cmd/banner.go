package cmd

import (
	"fmt"

	"github.com/labstack/gommon/color"
)

func banner(version, addr, backend, folder string) string {
	return fmt.Sprintf(
		`
%s rxscan %s

Flatbed scanning service
------------------------------
Backend  %s
Folder   %s
------------------------------
⇨ HTTP server started on %s`,
		color.Cyan("⬢"),
		color.Red(version),
		color.Grey(backend),
		color.Grey(folder),
		color.Green("http://"+addr),
	)
}
