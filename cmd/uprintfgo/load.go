package uprintfgo

import (
	"github.com/uprintf-go/uprintf/pkg/dwarf"
	"github.com/uprintf-go/uprintf/pkg/elfimage"
	"github.com/uprintf-go/uprintf/pkg/utils"
)

// loadTarget mmaps path and ingests its DWARF, the same two steps
// uprintf.Init performs against /proc/self/exe, applied instead to an
// arbitrary on-disk binary the CLI was pointed at.
func loadTarget(path string) (*elfimage.Image, *dwarf.Session, error) {
	img, err := elfimage.Load(path)
	if err != nil {
		return nil, nil, utils.MakeError(err, "uprintfgo: loading %q", path)
	}
	sess, err := dwarf.Ingest(img, "")
	if err != nil {
		_ = img.Close()
		return nil, nil, utils.MakeError(err, "uprintfgo: ingesting DWARF from %q", path)
	}
	return img, sess, nil
}
