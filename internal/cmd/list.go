package cmd

import (
	"fmt"
	"log/slog"

	"github.com/cdelston0/pixelpusher/hostusb"
)

// List enumerates attached devices and their interface names once and exits.
type List struct {
	Vendor  string `help:"USB vendor id filter (hex)" default:"cafe" env:"PIXELPUSHER_VENDOR"`
	Product string `help:"USB product id filter (hex)" default:"4001" env:"PIXELPUSHER_PRODUCT"`
	All     bool   `help:"List all attached devices regardless of vendor/product"`
}

func (l *List) Run(logger *slog.Logger) error {
	vendor, err := parseUSBID(l.Vendor)
	if err != nil {
		return err
	}
	product, err := parseUSBID(l.Product)
	if err != nil {
		return err
	}
	if l.All {
		vendor, product = 0, 0
	}

	catalog, err := hostusb.NewCatalog()
	if err != nil {
		return err
	}
	defer func() { _ = catalog.Close() }()

	infos, err := catalog.Snapshot(vendor, product)
	if err != nil {
		return err
	}
	if len(infos) == 0 {
		fmt.Println("no matching devices attached")
		return nil
	}

	for _, info := range infos {
		fmt.Printf("%s %04x:%04x port %d\n", info.ID, info.Vendor, info.Product, info.Port)
		dev, err := catalog.FindByBusAddress(info.ID, info.Vendor, info.Product)
		if err != nil {
			logger.Warn("could not open device", "device", info.ID.String(), "error", err)
			continue
		}
		for _, ii := range dev.Interfaces() {
			name := ii.Name
			if name == "" {
				name = "(unnamed)"
			}
			fmt.Printf("  config %d interface %d: %s\n", ii.Config, ii.Number, name)
		}
		_ = dev.Close()
	}
	return nil
}
