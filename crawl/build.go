package crawl

import (
	"github.com/onnwee/flvwatch/bilibili"
	"github.com/onnwee/flvwatch/config"
)

// NewJob wires a job against the live platform from cfg. Recorder and Publisher are left for the caller.
func NewJob(cfg *config.Config) *Job {
	client := &bilibili.Client{
		ListURL:      cfg.ListURL,
		RoomPageBase: cfg.RoomPageBase,
		Timeout:      cfg.RequestTimeout,
	}
	return &Job{
		Pipeline: &Pipeline{
			Lister: client,
			Prober: &Prober{
				Fetcher:        client,
				ManifestMarker: cfg.ManifestMarker,
				FlvMarker:      cfg.FlvMarker,
			},
			Discovery: DiscoveryOptions{
				Pages:    cfg.DiscoveryPages,
				PageSize: cfg.DiscoveryPageSize,
				Strict:   cfg.StrictPages,
				Delay:    cfg.RequestDelay,
			},
			ProbeDelay: cfg.RequestDelay,
		},
		StorePath: cfg.StorePath,
	}
}
