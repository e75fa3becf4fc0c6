package banner

import (
	"fmt"
	"strings"

	"meshnode/pkg/config"
)

const banner = `
███╗   ███╗███████╗███████╗██╗  ██╗███╗   ██╗ ██████╗ ██████╗ ███████╗
████╗ ████║██╔════╝██╔════╝██║  ██║████╗  ██║██╔═══██╗██╔══██╗██╔════╝
██╔████╔██║█████╗  ███████╗███████║██╔██╗ ██║██║   ██║██║  ██║█████╗
██║╚██╔╝██║██╔══╝  ╚════██║██╔══██║██║╚██╗██║██║   ██║██║  ██║██╔══╝
██║ ╚═╝ ██║███████╗███████║██║  ██║██║ ╚████║╚██████╔╝██████╔╝███████╗
╚═╝     ╚═╝╚══════╝╚══════╝╚═╝  ╚═╝╚═╝  ╚═══╝ ╚═════╝ ╚═════╝ ╚══════╝
`

// Print writes the startup banner with the effective runtime settings.
func Print(eff config.EffectiveConfigResult, chains []string, version string) {
	fmt.Print(banner)
	fmt.Println("== Config =====================================================")
	fmt.Printf("Listen:   %s\n", eff.Addr)
	fmt.Printf("DB Path:  %s\n", eff.DBPath)
	if version != "" {
		fmt.Printf("Version:  %s\n", version)
	}
	fmt.Printf("Config:   %s\n", eff.Source)
	if len(chains) > 0 {
		fmt.Printf("Chains:   %s\n", strings.Join(chains, ", "))
	} else {
		fmt.Println("Chains:   NONE (every candidate will be rejected as unknown-chain)")
	}
	if gw := eff.Config.Resolver.GatewayURL; gw != "" {
		fmt.Printf("Gateway:  %s\n", gw)
	} else {
		fmt.Println("Gateway:  unset (content-addressed items will defer until a gateway is configured)")
	}

	fmt.Println("\n== Endpoints ==================================================")
	fmt.Println("POST /v1/messages                       - Submit a message envelope")
	fmt.Println("GET  /v1/messages/{hash}                - Message record plus confirmations")
	fmt.Println("GET  /v1/channels/{channel}/messages    - Replay a channel in deterministic order")
	fmt.Println("GET  /v1/aggregates/{address}?keys=a,b  - Merged aggregate state")
	fmt.Println("GET  /v1/posts/{hash}  GET /v1/files/{hash}")
	fmt.Println("GET  /healthz  /readyz  /metrics")

	fmt.Println("\n== Examples ===================================================")
	fmt.Printf("curl -X POST 'http://localhost%s/v1/messages' -d '{\"type\":\"POST\",\"chain\":\"ETH\",...}'\n", eff.Addr)
	fmt.Printf("curl 'http://localhost%s/v1/aggregates/<address>'\n", eff.Addr)
	fmt.Println()
}
