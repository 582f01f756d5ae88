// cmd/exif-geotag/main.go
package main

import (
	"github.com/bstardust/exif-geotag/internal/logger"
	"github.com/bstardust/exif-geotag/pkg/cli"
)

func main() {
	logger.Init()
	cli.Execute()
}
