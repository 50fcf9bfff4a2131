package conf

import (
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// flagKeyAnnotation marks a command line flag with the config key it overrides.
const flagKeyAnnotation = "pneumodetect_config_key"

// MarkFlag records that flag name overrides config key. Binding is
// deferred to BindFlags so several commands can offer the same override.
func MarkFlag(fs *pflag.FlagSet, name, key string) {
	// only fails when the flag does not exist
	_ = fs.SetAnnotation(name, flagKeyAnnotation, []string{key})
}

// BindFlags binds every marked flag in fs to v. Call it for the executing
// command only, before Load.
func BindFlags(v *viper.Viper, fs *pflag.FlagSet) error {
	var bindErr error
	fs.VisitAll(func(f *pflag.Flag) {
		keys := f.Annotations[flagKeyAnnotation]
		if len(keys) == 0 || bindErr != nil {
			return
		}
		bindErr = v.BindPFlag(keys[0], f)
	})
	return bindErr
}
