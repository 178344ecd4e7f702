// Copyright © 2016 Zellyn Hunter <zellyn@gmail.com>

package main

import (
	"github.com/onionmixer/rdedisktool/cmd"
)

func main() {
	cmd.Execute()
}
