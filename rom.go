// rom.go - ROM loading from disk.

package main

import "os"

// LoadROMFile reads path and installs it into the controller's Machine
// State via Controller.LoadROM, which enforces MaxROMSize.
func LoadROMFile(c *Controller, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return c.LoadROM(data)
}
