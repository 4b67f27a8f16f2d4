package service

import "github.com/kardianos/service"

const (
	ServiceName        = "vrs-scraper"
	ServiceDisplayName = "VRS Data Pack Scraper"
	ServiceDescription = "Downloads Virtual Racing School telemetry data packs on a schedule"
)

// NewServiceConfig creates a new service configuration
func NewServiceConfig(args []string) *service.Config {
	cfg := &service.Config{
		Name:        ServiceName,
		DisplayName: ServiceDisplayName,
		Description: ServiceDescription,
		Arguments:   args,
	}

	// Windows-specific options
	cfg.Option = service.KeyValue{
		"StartType": "automatic",
	}

	return cfg
}
