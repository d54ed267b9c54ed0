package app

import "time"

const (
	Name                = "framelink"
	SourceURL           = "https://github.com/foodlens/framelink"
	ConfigFilename      = "config.json"
	DBFilename          = "meals.db"
	LogFilename         = "framelink.log"
	CapturesDir         = "captures"
	WriterQueueCapacity = 512
	ShutdownFlushWait   = 3 * time.Second
)
