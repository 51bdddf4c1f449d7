package rtu

import (
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
)

var (
	devDir   = "/dev"
	sysfsTTY = "/sys/class/tty"
)

// UART families that can drive an RS-485 transceiver. Virtual terminals
// and pseudo-terminals never match.
var serialPatterns = []struct {
	re   *regexp.Regexp
	kind string
}{
	{regexp.MustCompile(`^ttyUSB\d+$`), "USB Serial"},
	{regexp.MustCompile(`^ttyACM\d+$`), "USB CDC/ACM"},
	{regexp.MustCompile(`^ttyAMA\d+$`), "ARM Serial"},
	{regexp.MustCompile(`^ttymxc\d+$`), "i.MX Serial"},
	{regexp.MustCompile(`^ttySAC\d+$`), "Samsung Serial"},
	{regexp.MustCompile(`^ttyTHS\d+$`), "Tegra Serial"},
	{regexp.MustCompile(`^ttyO\d+$`), "OMAP Serial"},
	{regexp.MustCompile(`^ttyS\d+$`), "Standard Serial"},
}

// portKind returns the UART family of a device name, or "" when the name
// is not a serial port
func portKind(name string) string {
	for _, p := range serialPatterns {
		if p.re.MatchString(name) {
			return p.kind
		}
	}
	return ""
}

// ListPorts returns the serial device paths present on the system, sorted
func ListPorts() ([]string, error) {
	entries, err := os.ReadDir(devDir)
	if err != nil {
		return nil, err
	}

	var ports []string
	for _, entry := range entries {
		if portKind(entry.Name()) == "" {
			continue
		}
		path := filepath.Join(devDir, entry.Name())
		if isCharacterDevice(path) {
			ports = append(ports, path)
		}
	}
	sort.Strings(ports)
	return ports, nil
}

func isCharacterDevice(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return info.Mode()&os.ModeCharDevice != 0
}

// PortInfo describes a serial port as seen through sysfs
type PortInfo struct {
	Name         string
	Path         string
	Kind         string
	Driver       string
	VendorID     string
	ProductID    string
	SerialNumber string
	Manufacturer string
	Product      string
}

// Description is the kind plus the USB product name when known
func (i PortInfo) Description() string {
	if i.Product != "" {
		return i.Kind + " (" + i.Product + ")"
	}
	return i.Kind
}

// GetPortInfo returns sysfs details about portPath
func GetPortInfo(portPath string) (*PortInfo, error) {
	if !isCharacterDevice(portPath) {
		return nil, ErrDeviceNotFound
	}

	name := filepath.Base(portPath)
	kind := portKind(name)
	if kind == "" {
		kind = "Serial Port"
	}
	info := &PortInfo{Name: name, Path: portPath, Kind: kind}
	enrichFromSysfs(info)
	return info, nil
}

// enrichFromSysfs fills the driver and, for USB adapters, the descriptor
// strings of the nearest ancestor USB device
func enrichFromSysfs(info *PortInfo) {
	dev, err := filepath.EvalSymlinks(filepath.Join(sysfsTTY, info.Name, "device"))
	if err != nil {
		return
	}
	if driver, err := filepath.EvalSymlinks(filepath.Join(dev, "driver")); err == nil {
		info.Driver = filepath.Base(driver)
	}

	// ttyUSB sits below the interface, which sits below the device
	for dir, i := dev, 0; i < 4 && dir != "/" && dir != "."; dir, i = filepath.Dir(dir), i+1 {
		vendor := readSysfs(dir, "idVendor")
		if vendor == "" {
			continue
		}
		info.VendorID = vendor
		info.ProductID = readSysfs(dir, "idProduct")
		info.SerialNumber = readSysfs(dir, "serial")
		info.Manufacturer = readSysfs(dir, "manufacturer")
		info.Product = readSysfs(dir, "product")
		return
	}
}

func readSysfs(dir, attr string) string {
	data, err := os.ReadFile(filepath.Join(dir, attr))
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}
