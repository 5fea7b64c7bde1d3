// Package network enumerates local network interfaces to pick a sensible
// default Art-Net broadcast address when the server isn't told one.
package network

import (
	"fmt"
	"net"
	"os/exec"
	"runtime"
	"strings"
)

// InterfaceOption describes one candidate broadcast address.
type InterfaceOption struct {
	Name          string
	Address       string
	Broadcast     string
	Description   string
	InterfaceType string // "ethernet", "wifi", "other", "localhost", "global"
}

// GetInterfaceType determines the type of network interface.
func GetInterfaceType(ifaceName string) string {
	if runtime.GOOS == "darwin" {
		interfaceType := getMacOSInterfaceType(ifaceName)
		if interfaceType != "other" {
			return interfaceType
		}
	}
	return getFallbackInterfaceType(ifaceName)
}

// getMacOSInterfaceType uses networksetup to determine interface type on macOS.
func getMacOSInterfaceType(ifaceName string) string {
	for _, char := range ifaceName {
		isLowerLetter := char >= 'a' && char <= 'z'
		isUpperLetter := char >= 'A' && char <= 'Z'
		isDigit := char >= '0' && char <= '9'
		isAllowed := isLowerLetter || isUpperLetter || isDigit || char == '-' || char == '_'
		if !isAllowed {
			return getFallbackInterfaceType(ifaceName)
		}
	}

	cmd := exec.Command("networksetup", "-listallhardwareports")
	output, err := cmd.Output()
	if err != nil {
		return getFallbackInterfaceType(ifaceName)
	}

	outputLower := strings.ToLower(string(output))
	deviceSearch := fmt.Sprintf("device: %s", strings.ToLower(ifaceName))

	blocks := strings.Split(outputLower, "hardware port:")
	for _, block := range blocks[1:] {
		if strings.Contains(block, deviceSearch) {
			if strings.Contains(block, "wi-fi") ||
				strings.Contains(block, "wifi") ||
				strings.Contains(block, "wireless") {
				return "wifi"
			}
			if (strings.Contains(block, "usb") &&
				(strings.Contains(block, "lan") ||
					strings.Contains(block, "ethernet") ||
					strings.Contains(block, "100"))) ||
				strings.Contains(block, "thunderbolt") ||
				strings.Contains(block, "ethernet") ||
				strings.Contains(block, "wired") {
				return "ethernet"
			}
			return "other"
		}
	}

	return getFallbackInterfaceType(ifaceName)
}

// getFallbackInterfaceType uses naming patterns to guess interface type.
func getFallbackInterfaceType(ifaceName string) string {
	name := strings.ToLower(ifaceName)

	if name == "en0" {
		return "wifi"
	}

	if strings.HasPrefix(name, "eth") ||
		strings.HasPrefix(name, "en") ||
		strings.HasPrefix(name, "enp") ||
		strings.HasPrefix(name, "eno") {
		return "ethernet"
	}

	if strings.HasPrefix(name, "wlan") ||
		strings.HasPrefix(name, "wl") ||
		strings.Contains(name, "wifi") ||
		strings.Contains(name, "wireless") {
		return "wifi"
	}

	return "other"
}

// calculateBroadcast computes the broadcast address from an IP and netmask.
func calculateBroadcast(ip net.IP, mask net.IPMask) net.IP {
	if ip == nil || mask == nil {
		return nil
	}

	ip4 := ip.To4()
	if ip4 == nil {
		return nil
	}

	if len(mask) == 16 {
		mask = mask[12:16]
	}
	if len(mask) != 4 {
		return nil
	}

	broadcast := make(net.IP, 4)
	for i := 0; i < 4; i++ {
		broadcast[i] = ip4[i] | ^mask[i]
	}

	return broadcast
}

// GetNetworkInterfaces returns every candidate broadcast address, ethernet
// first, then wifi, then everything else, with localhost and the global
// broadcast address always appended last.
func GetNetworkInterfaces() ([]InterfaceOption, error) {
	interfaces, err := net.Interfaces()
	if err != nil {
		return nil, fmt.Errorf("network: list interfaces: %w", err)
	}

	var ethernetOptions []InterfaceOption
	var wifiOptions []InterfaceOption
	var otherOptions []InterfaceOption

	for _, iface := range interfaces {
		if iface.Flags&net.FlagUp == 0 {
			continue
		}
		if iface.Flags&net.FlagLoopback != 0 {
			continue
		}

		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}

		for _, addr := range addrs {
			ipNet, ok := addr.(*net.IPNet)
			if !ok {
				continue
			}

			ip4 := ipNet.IP.To4()
			if ip4 == nil {
				continue
			}

			broadcast := calculateBroadcast(ip4, ipNet.Mask)
			if broadcast == nil {
				continue
			}

			broadcastStr := broadcast.String()
			if broadcastStr == ip4.String() {
				continue
			}

			interfaceType := GetInterfaceType(iface.Name)

			option := InterfaceOption{
				Name:          fmt.Sprintf("%s-broadcast", iface.Name),
				Address:       ip4.String(),
				Broadcast:     broadcastStr,
				Description:   fmt.Sprintf("%s (%s broadcast %s)", iface.Name, interfaceType, broadcastStr),
				InterfaceType: interfaceType,
			}

			switch interfaceType {
			case "ethernet":
				ethernetOptions = append(ethernetOptions, option)
			case "wifi":
				wifiOptions = append(wifiOptions, option)
			default:
				otherOptions = append(otherOptions, option)
			}
		}
	}

	options := make([]InterfaceOption, 0, len(ethernetOptions)+len(wifiOptions)+len(otherOptions)+2)
	options = append(options, ethernetOptions...)
	options = append(options, wifiOptions...)
	options = append(options, otherOptions...)

	options = append(options, InterfaceOption{
		Name:          "localhost",
		Address:       "127.0.0.1",
		Broadcast:     "127.0.0.1",
		Description:   "localhost (for testing only)",
		InterfaceType: "localhost",
	})

	options = append(options, InterfaceOption{
		Name:          "global-broadcast",
		Address:       "0.0.0.0",
		Broadcast:     "255.255.255.255",
		Description:   "global broadcast (255.255.255.255)",
		InterfaceType: "global",
	})

	return options, nil
}

// DefaultBroadcastAddress picks the best Art-Net broadcast candidate: the
// first wired interface, falling back to wifi, then to the global
// broadcast address if nothing else is up.
func DefaultBroadcastAddress() string {
	options, err := GetNetworkInterfaces()
	if err != nil || len(options) == 0 {
		return "255.255.255.255"
	}
	for _, o := range options {
		if o.InterfaceType == "ethernet" || o.InterfaceType == "wifi" {
			return o.Broadcast
		}
	}
	return "255.255.255.255"
}
