package pipeline

import (
	"fmt"
	"time"

	"git.home.luguber.info/inful/texbot/internal/latex"
)

// User-facing texts that do not come from a categorized error.
const (
	TextGreeting       = "Send me a ZIP archive! I will try to create a PDF file from it."
	TextNotAnArchive   = "Please send a ZIP archive."
	TextBusy           = "I am busy right now, please try again in a minute."
	TextShuttingDown   = "The bot is restarting. Please send the archive again in a minute."
	TextTooLarge       = "The archive is too large for me to download."
	TextDownloadFailed = "I could not download the archive, please send it again."
	TextCompilerErrors = "The compiler reported errors; see the logs in the archive."
	TextNoPDF          = "No PDF was produced; see the logs in the archive."
)

// TextRequestTimedOut is sent when the whole request overran its deadline.
func TextRequestTimedOut(d time.Duration) string {
	return fmt.Sprintf("The build timed out after %s.", d)
}

// Caption describes the delivered archive, e.g. "main.pdf, 3 pages", with a
// warning line when the compiler complained or produced no PDF.
func Caption(base string, build *latex.Outcome) string {
	if build == nil || !build.PDFPresent {
		return TextNoPDF
	}
	var line string
	switch {
	case !build.PDF.Valid:
		line = fmt.Sprintf("%s.pdf (could not be validated)", base)
	case build.PDF.Pages == 1:
		line = fmt.Sprintf("%s.pdf, 1 page", base)
	default:
		line = fmt.Sprintf("%s.pdf, %d pages", base, build.PDF.Pages)
	}
	if build.CompilerErrors {
		line += "\n" + TextCompilerErrors
	}
	return line
}
