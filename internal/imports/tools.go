package imports

import (
	// Model inspection tools
	_ "github.com/sammcj/mcp-modelmeta/internal/tools/modelreader"
)
