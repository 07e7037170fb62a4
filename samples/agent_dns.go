//go:build ignore

// Command agent_dns shows resolving registry endpoints from a DNS TXT
// record instead of a static endpoint list.
package main

import (
	"log"
	"time"

	"github.com/shadowxiali/ppeureka/eureka"
)

func main() {
	agent, err := eureka.NewAgent(
		eureka.WithDNSDiscovery(eureka.DNSDiscoveryConfig{
			Enabled:      true,
			Resolver:     "127.0.0.1:53",
			DomainSuffix: "eureka.mycompany.net",
			Region:       "us-east-1",
			Zone:         "zone1",
			RefreshEvery: 5 * time.Minute,
		}),
	)
	if err != nil {
		log.Fatalf("new agent: %v", err)
	}
	if err := agent.Start(); err != nil {
		log.Fatalf("start agent: %v", err)
	}
	defer agent.Stop()

	instances, err := agent.Registry().QueryInsAll()
	if err != nil {
		log.Fatalf("query apps: %v", err)
	}
	counts := map[string]int{}
	for _, ins := range instances {
		counts[ins.App]++
	}
	for app, count := range counts {
		log.Printf("app %s: %d instances", app, count)
	}
}
