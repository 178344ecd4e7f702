package cmd

import (
	"fmt"
	"path"
	"strings"

	"github.com/onionmixer/rdedisktool/disk"
	"github.com/onionmixer/rdedisktool/helpers"
	"github.com/onionmixer/rdedisktool/types"
)

type ReorderCmd struct {
	Order    string `kong:"default='auto',enum='auto,do,po',help='Logical-to-physical sector order.'"`
	NewOrder string `kong:"default='auto',enum='auto,do,po',help='New Logical-to-physical sector order.'"`
	Force    bool   `kong:"short='s',help='Overwrite existing file?'"`

	DiskImage    string `kong:"arg,required,type='existingfile',help='Disk image to read.'"`
	NewDiskImage string `kong:"arg,optional,type='path',help='Disk image to write, if different.'"`
}

func (r *ReorderCmd) Run(globals *types.Globals) error {
	if r.NewDiskImage == "" {
		r.NewDiskImage = r.DiskImage
	}
	fromOrder, toOrder, err := getOrders(r.DiskImage, r.Order, r.NewDiskImage, r.NewOrder)
	if err != nil {
		return err
	}
	if r.NewDiskImage == r.DiskImage && !r.Force {
		return fmt.Errorf("refusing to overwrite %q without --force (-s)", r.DiskImage)
	}
	frombytes, err := helpers.FileContentsOrStdIn(r.DiskImage)
	if err != nil {
		return err
	}
	fromMap, ok := disk.LogicalToPhysicalByName[fromOrder]
	if !ok {
		return fmt.Errorf("internal error: disk order '%s' not found", fromOrder)
	}
	toMap, ok := disk.PhysicalToLogicalByName[toOrder]
	if !ok {
		return fmt.Errorf("internal error: disk order '%s' not found", toOrder)
	}
	rawbytes, err := disk.Swizzle(frombytes, fromMap)
	if err != nil {
		return err
	}
	tobytes, err := disk.Swizzle(rawbytes, toMap)
	if err != nil {
		return err
	}
	return helpers.WriteOutput(r.NewDiskImage, tobytes, r.Force)
}

// getOrders returns the input order, and the output order.
func getOrders(inFilename string, inOrder string, outFilename string, outOrder string) (types.DiskOrder, types.DiskOrder, error) {
	if inOrder == "auto" && outOrder != "auto" {
		return oppositeOrder(types.DiskOrder(outOrder)), types.DiskOrder(outOrder), nil
	}
	if outOrder == "auto" && inOrder != "auto" {
		return types.DiskOrder(inOrder), oppositeOrder(types.DiskOrder(inOrder)), nil
	}
	if inOrder != outOrder {
		return types.DiskOrder(inOrder), types.DiskOrder(outOrder), nil
	}
	if inOrder != "auto" {
		return "", "", fmt.Errorf("identical order and new-order")
	}

	inGuess, outGuess := orderFromFilename(inFilename), orderFromFilename(outFilename)
	if inGuess == outGuess {
		if inGuess == "" {
			return "", "", fmt.Errorf("cannot determine input or output order from file extensions")
		}
		return "", "", fmt.Errorf("guessed order (%s) from file %q is the same as guessed order (%s) from file %q", inGuess, inFilename, outGuess, outFilename)
	}

	if inGuess == "" {
		return oppositeOrder(outGuess), outGuess, nil
	}
	if outGuess == "" {
		return inGuess, oppositeOrder(inGuess), nil
	}
	return inGuess, outGuess, nil
}

// oppositeOrder returns the opposite order from the input.
func oppositeOrder(order types.DiskOrder) types.DiskOrder {
	if order == types.DiskOrderDO {
		return types.DiskOrderPO
	}
	return types.DiskOrderDO
}

// orderFromFilename tries to guess the disk order from the filename, using the extension.
func orderFromFilename(filename string) types.DiskOrder {
	ext := strings.ToLower(path.Ext(filename))
	switch ext {
	case ".dsk", ".do":
		return types.DiskOrderDO
	case ".po":
		return types.DiskOrderPO
	default:
		return types.DiskOrderUnknown
	}
}
