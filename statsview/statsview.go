// Package statsview serves live Go runtime charts (heap, goroutines, GC) while the
// emulator runs, handy when tuning the interpreter loop.
package statsview

import (
	"fmt"
	"io"

	"github.com/go-echarts/statsview"
	"github.com/go-echarts/statsview/viewer"
)

// Address the stats server listens on.
const Address = "localhost:12880"

const url = "/debug/statsview"

// Launch starts the server in the background and tells output where to find it.
func Launch(output io.Writer) {
	go func() {
		viewer.SetConfiguration(viewer.WithAddr(Address))
		mgr := statsview.New()
		mgr.Start()
	}()
	fmt.Fprintf(output, "stats server available at http://%s%s\n", Address, url)
}
