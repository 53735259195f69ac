package bot

import (
	"bufio"
	"fmt"
	"os"
	"runtime"

	"github.com/rs/zerolog/log"
)

// WaitOnWindows keeps a double-clicked console window open until Enter is
// pressed, so the last error stays readable.
func WaitOnWindows() {
	if runtime.GOOS != "windows" {
		return
	}
	fmt.Fprintln(os.Stderr, "Appuyez sur Entrée pour quitter...")
	bufio.NewReader(os.Stdin).ReadString('\n')
}

// FatalWithWait logs a fatal startup error and exits.
func FatalWithWait(format string, args ...any) {
	log.Error().Msgf(format, args...)
	WaitOnWindows()
	os.Exit(1)
}
