package cmd

import (
	"github.com/onionmixer/rdedisktool/disk"
	"github.com/onionmixer/rdedisktool/dos3"
	"github.com/onionmixer/rdedisktool/fat12"
	"github.com/onionmixer/rdedisktool/prodos"
	"github.com/onionmixer/rdedisktool/types"
)

// operatorFactories lists every filesystem this tool knows how to
// recognize inside a flat-sector or block-device image: DOS 3.3,
// ProDOS, and FAT12 (MSX-DOS/Human68k). WOZ/NIB/DMK/XSA/DIM container
// formats are handled separately by the registry package, one layer
// below filesystem semantics.
var operatorFactories = []types.OperatorFactory{
	dos3.OperatorFactory{},
	prodos.OperatorFactory{},
	fat12.OperatorFactory{},
}

// openOperator opens filename as a disk or device image and resolves
// a filesystem Operator for it, guessing sector order and filesystem
// unless told otherwise.
func openOperator(filename string) (types.Operator, types.DiskOrder, error) {
	return disk.OpenFilename(filename, types.DiskOrderAuto, "auto", operatorFactories, debugFlag)
}
