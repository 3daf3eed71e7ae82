package client

import (
	"fmt"
	"strings"

	"github.com/knadh/koanf"
	"github.com/knadh/koanf/providers/confmap"
)

func NewClient(clientType string, settings Settings, raw map[string]interface{}) (Interface, error) {
	switch strings.ToLower(clientType) {
	case "qbittorrent":
		return NewQBittorrent(settings, raw)
	case "deluge":
		return NewDeluge(settings, raw)
	case "rtorrent":
		return NewRTorrent(settings, raw)
	default:
		return nil, fmt.Errorf("client type not supported: %s", clientType)
	}
}

// decode unmarshals the backend specific keys of a client entry.
func decode(raw map[string]interface{}, out interface{}) error {
	k := koanf.New(".")
	if err := k.Load(confmap.Provider(raw, ""), nil); err != nil {
		return fmt.Errorf("load client config: %w", err)
	}

	if err := k.Unmarshal("", out); err != nil {
		return fmt.Errorf("unmarshal client config: %w", err)
	}

	return nil
}
