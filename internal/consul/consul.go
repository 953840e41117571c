package consul

import (
	"fmt"
	"net"
	"strconv"

	consulapi "github.com/hashicorp/consul/api"
)

// NewClient connects to the consul agent at addr, or the CONSUL_HTTP_ADDR default when empty.
func NewClient(addr string) (*consulapi.Client, error) {
	cfg := consulapi.DefaultConfig()
	if addr != "" {
		cfg.Address = addr
	}
	client, err := consulapi.NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("creating consul client: %w", err)
	}
	return client, nil
}

type Registration struct {
	ServiceName string
	// HTTPAddr is host:port of the HTTP listener. An empty host advertises the node address.
	HTTPAddr string
	// HealthURL is polled by consul; the /ping endpoint is used when it is empty.
	HealthURL string
}

// Register adds the service to the local agent and returns the service id for Deregister.
func Register(client *consulapi.Client, r Registration) (string, error) {
	host, portStr, err := net.SplitHostPort(r.HTTPAddr)
	if err != nil {
		return "", fmt.Errorf("invalid http address %q: %w", r.HTTPAddr, err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return "", fmt.Errorf("invalid http port %q: %w", portStr, err)
	}

	checkHost := host
	if checkHost == "" {
		checkHost = "localhost"
	}
	healthURL := r.HealthURL
	if healthURL == "" {
		healthURL = fmt.Sprintf("http://%s/ping", net.JoinHostPort(checkHost, portStr))
	}

	id := fmt.Sprintf("%s-%s", r.ServiceName, net.JoinHostPort(checkHost, portStr))
	reg := &consulapi.AgentServiceRegistration{
		ID:      id,
		Name:    r.ServiceName,
		Address: host,
		Port:    port,
		Tags:    []string{"http", "procurement"},
		Check: &consulapi.AgentServiceCheck{
			HTTP:                           healthURL,
			Interval:                       "10s",
			Timeout:                        "2s",
			DeregisterCriticalServiceAfter: "1m",
		},
	}
	if err := client.Agent().ServiceRegister(reg); err != nil {
		return "", fmt.Errorf("registering %s with consul: %w", r.ServiceName, err)
	}
	return id, nil
}

func Deregister(client *consulapi.Client, id string) error {
	if err := client.Agent().ServiceDeregister(id); err != nil {
		return fmt.Errorf("deregistering %s from consul: %w", id, err)
	}
	return nil
}
