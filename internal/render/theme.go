package render

import (
	"fmt"
	"sort"
	"strings"
)

// Theme holds colors for graph rendering.
type Theme struct {
	Background string
	NodeFill   string
	NodeBorder string
	TextColor  string

	// Block accents.
	EntryBorder string // function entry blocks
	ExitFill    string // blocks that leave the function

	// Edge colors by CFG edge type.
	EdgeTrue      string // conditional branch taken
	EdgeFalse     string // conditional fallthrough
	EdgeDirect    string // unconditional branch or fallthrough
	EdgeCall      string // call and syscall
	EdgeReturn    string // return and sysret
	EdgeUnlabeled string

	// External nodes (callees, return sinks).
	ExternalText string

	// Cluster styling.
	ClusterBorder string
	ClusterLabel  string
}

// NASA is the NASA/Bauhaus theme: geometric, monochrome, sparse color.
var NASA = Theme{
	Background: "#F5F5F5",
	NodeFill:   "white",
	NodeBorder: "#1A1A1A",
	TextColor:  "#1A1A1A",

	EntryBorder: "#0B3D91", // NASA blue
	ExitFill:    "#ECEFF1", // blue-gray 50

	EdgeTrue:      "#0B3D91",
	EdgeFalse:     "#FC3D21", // NASA red
	EdgeDirect:    "#424242",
	EdgeCall:      "#00695C", // teal
	EdgeReturn:    "#E65100", // deep orange
	EdgeUnlabeled: "#9E9E9E",

	ExternalText: "#9E9E9E",

	ClusterBorder: "#BDBDBD",
	ClusterLabel:  "#757575",
}

// Night is a dark variant for terminals and dark-mode viewers.
var Night = Theme{
	Background: "#121212",
	NodeFill:   "#1E1E1E",
	NodeBorder: "#B0BEC5",
	TextColor:  "#ECEFF1",

	EntryBorder: "#64B5F6",
	ExitFill:    "#37474F",

	EdgeTrue:      "#64B5F6",
	EdgeFalse:     "#EF5350",
	EdgeDirect:    "#B0BEC5",
	EdgeCall:      "#4DB6AC",
	EdgeReturn:    "#FFB74D",
	EdgeUnlabeled: "#616161",

	ExternalText: "#90A4AE",

	ClusterBorder: "#455A64",
	ClusterLabel:  "#90A4AE",
}

var themes = map[string]Theme{
	"nasa":  NASA,
	"night": Night,
}

// ThemeByName looks up a theme; "" selects NASA.
func ThemeByName(name string) (Theme, error) {
	if name == "" {
		return NASA, nil
	}
	if t, ok := themes[strings.ToLower(name)]; ok {
		return t, nil
	}
	names := make([]string, 0, len(themes))
	for n := range themes {
		names = append(names, n)
	}
	sort.Strings(names)
	return Theme{}, fmt.Errorf("render: unknown theme %q (have %s)", name, strings.Join(names, ", "))
}
