package position

import "fmt"

const tokenImageURL = "https://storage.googleapis.com/zapper-fi-assets/tokens/%s/%s.png"

// DollarDisplayItem renders value as a USD amount.
func DollarDisplayItem(value float64) DisplayItem {
	return DisplayItem{Type: "dollar", Value: value}
}

// PercentageDisplayItem renders value as a percentage.
func PercentageDisplayItem(value float64) DisplayItem {
	return DisplayItem{Type: "pct", Value: value}
}

// ImagesFromToken returns the logo of a base token. Synthetic assets
// without an address have no logo.
func ImagesFromToken(t Token) []string {
	if t.Address == "" {
		return []string{}
	}
	return []string{fmt.Sprintf(tokenImageURL, t.Network, t.Address)}
}
