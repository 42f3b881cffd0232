package topology

var boards = map[string]string{
	"0x467,00":       "Buffalo WHR(-HP)-G54",
	"0x0467,42":      "Linksys WRT54G v4/GL",
	"0x467,42":       "Linksys WRT54G v4/GL",
	"0x0708,42":      "Linksys WRT54G v2/v3",
	"0x0101,42":      "Linksys WRT54G v2/v3",
	"bcm94710dev,42": "Linksys WRT54G v1",
	"WHR-108G":       "Buffalo WHR-HP-G108",
	"atheros,00":     "D-Link DIR-300, Ubiquiti NanoStation2",
	"0x0446,1024":    "Linksys WAP54G v2",
}

// HardwareName turns a board identifier into a product name. Unknown
// identifiers are returned unchanged.
func HardwareName(board string) string {
	if name, ok := boards[board]; ok {
		return name
	}
	return board
}
