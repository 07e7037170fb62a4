// Command agent_basic shows the minimum setup to register an instance and
// look up a healthy peer of another app.
package main

import (
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/shadowxiali/ppeureka/eureka"
)

func main() {
	agent, err := eureka.NewAgent(
		eureka.WithEndpoints("http://127.0.0.1:8761/eureka"),
		eureka.WithWorkerCount(4),
	)
	if err != nil {
		log.Fatalf("new agent: %v", err)
	}

	if err := agent.Start(); err != nil {
		log.Fatalf("start agent: %v", err)
	}

	insID, err := agent.RegisterSimple("SAMPLE-SERVICE", "127.0.0.1", 8080)
	if err != nil {
		log.Fatalf("register: %v", err)
	}
	log.Printf("registered as %s", insID)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		handle, err := agent.GetHandle("OTHER-SERVICE")
		if err != nil {
			log.Printf("lookup OTHER-SERVICE: %v", err)
			return
		}
		defer handle.Close()
		body, err := handle.Request("GET", "/health", "", nil)
		if err != nil {
			log.Printf("request OTHER-SERVICE: %v", err)
			return
		}
		log.Printf("OTHER-SERVICE replied: %s", body)
	}()

	<-sig
	log.Println("shutting down")
	if err := agent.Stop(); err != nil {
		log.Printf("stop agent: %v", err)
	}
}
