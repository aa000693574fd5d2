// Package autoload initializes the global logger from LOG_* environment
// variables on import. It reads the process environment only; commands
// that load a .env file re-run logx.Init afterwards.
package autoload

import (
	"github.com/kelseyhightower/envconfig"

	logx "github.com/tanpawarit/trendgeo/pkg/logger"
)

func init() {
	var conf logx.Config
	if err := envconfig.Process("LOG", &conf); err != nil {
		logx.Init()
		return
	}
	logx.Init(conf)
}
