package mcptest

import (
	"encoding/json"

	"github.com/ajitpratap0/mcp-conformance/pkg/protocol"
)

// BrewSourceTools returns the three tools advertised by a BrewSource server
func BrewSourceTools() []protocol.Tool {
	return []protocol.Tool{
		{
			Name:        "bjcp_lookup",
			Description: "Look up BJCP beer style information by style code or name",
			InputSchema: json.RawMessage(`{
				"type": "object",
				"properties": {
					"style_code": {"type": "string", "description": "BJCP style code (e.g., '21A' for American IPA)"},
					"style_name": {"type": "string", "description": "BJCP style name (e.g., 'American IPA')"}
				}
			}`),
		},
		{
			Name:        "search_beers",
			Description: "Search for commercial beers by name, style, brewery, or location",
			InputSchema: json.RawMessage(`{
				"type": "object",
				"properties": {
					"name": {"type": "string"},
					"style": {"type": "string"},
					"brewery": {"type": "string"},
					"location": {"type": "string"},
					"limit": {"type": "integer", "description": "Maximum number of results (default: 20, max: 100)"}
				}
			}`),
		},
		{
			Name:        "find_breweries",
			Description: "Find breweries by name, location, city, state, or country",
			InputSchema: json.RawMessage(`{
				"type": "object",
				"properties": {
					"name": {"type": "string"},
					"location": {"type": "string"},
					"city": {"type": "string"},
					"state": {"type": "string"},
					"country": {"type": "string"},
					"limit": {"type": "integer", "description": "Maximum number of results (default: 20, max: 100)"}
				}
			}`),
		},
	}
}

// BrewSourceTexts returns the text each BrewSource tool answers with
func BrewSourceTexts() map[string]string {
	return map[string]string{
		"bjcp_lookup": "**21A - American IPA**\n\n" +
			"Category: IPA\n" +
			"ABV: 5.5-7.5%  IBU: 40-70  SRM: 6-14\n\n" +
			"A decidedly hoppy and bitter, moderately strong American pale ale.",
		"search_beers": "Found 2 beers matching your search:\n\n" +
			"1. **Pliny the Elder** - Russian River Brewing Company\n" +
			"   Style: Double IPA | ABV: 8.0%\n" +
			"2. **Sculpin** - Ballast Point Brewing\n" +
			"   Style: American IPA | ABV: 7.0%",
		"find_breweries": "Found 2 breweries:\n\n" +
			"1. **Russian River Brewing Company** - Santa Rosa, California\n" +
			"2. **Sierra Nevada Brewing Co.** - Chico, California",
	}
}
