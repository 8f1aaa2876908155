package am

import (
	"github.com/BurntSushi/toml"

	"github.com/cytofkit/cytofkit/errors"
)

// ApplyParamsFile overlays an algorithm parameter file onto cfg. Only keys
// present in the file change; everything else keeps its configured value.
//
// A parameter file uses the same layout as the config file:
//
//	[cluster]
//	algorithm = "flowsom"
//
//	[cluster.flowsom]
//	n_clusters = 20
//	xdim = 12
//	ydim = 12
func ApplyParamsFile(cfg *Config, path string) error {
	md, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return errors.WrapInput(err, "failed to decode parameter file %s", path)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return errors.InputErrorf("parameter file %s has unknown keys: %v", path, undecoded)
	}
	return cfg.Validate()
}
