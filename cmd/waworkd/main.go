package main

import (
	"flag"
	"fmt"
	"os"

	"go.uber.org/fx"

	"github.com/rgdental/wawork/internal/daemon"
	"github.com/rgdental/wawork/internal/workdir"
)

func main() {
	dirFlag := flag.String("dir", "", "work directory (default ~/.wawork)")
	addrFlag := flag.String("addr", "", "listen address (overrides config)")
	flag.Parse()

	dir := *dirFlag
	if dir == "" {
		dir = workdir.Default()
	}
	if err := workdir.EnsureDirs(dir); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	app := fx.New(
		daemon.Module(daemon.Params{WorkDir: dir, Addr: *addrFlag}),
	)

	app.Run()
}
