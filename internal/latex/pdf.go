package latex

import (
	"sync"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
)

var disableConfigDir sync.Once

// PDFInfo summarizes the produced document.
type PDFInfo struct {
	Path  string
	Pages int
	Valid bool
	Err   error
}

// inspectPDF validates the document in relaxed mode and counts its pages.
// A broken file is reported through PDFInfo.Err, never as a build failure.
func inspectPDF(path string) PDFInfo {
	disableConfigDir.Do(api.DisableConfigDir)

	info := PDFInfo{Path: path}
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	if err := api.ValidateFile(path, conf); err != nil {
		info.Err = err
		return info
	}
	pages, err := api.PageCountFile(path)
	if err != nil {
		info.Err = err
		return info
	}
	info.Pages = pages
	info.Valid = true
	return info
}
