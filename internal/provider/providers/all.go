// Package providers imports all DNS provider backends to trigger their init() registration.
package providers

import (
	_ "subzone/internal/provider/cloudflare"
	_ "subzone/internal/provider/route53"
)
