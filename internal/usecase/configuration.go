package usecase

import (
	"fmt"

	"github.com/eliteGoblin/hawkeye/internal/config"
	"github.com/eliteGoblin/hawkeye/internal/domain"
)

// LoadConfiguration parses the committed config.json. A missing or unusable
// document yields the defaults together with the reason.
func LoadConfiguration(store domain.ArtifactStore) (domain.Configuration, error) {
	data, err := store.Read(domain.KindConfig)
	if err != nil {
		return config.Default(), fmt.Errorf("read config: %w", err)
	}
	return config.ParseDocument(data)
}
