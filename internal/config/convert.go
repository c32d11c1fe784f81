package config

func toFile(cfg WorkerConfig) fileConfig {
	t := cfg.Transform
	return fileConfig{
		LogLevel:        cfg.LogLevel,
		ReceiveTimeout:  cfg.ReceiveTimeout.String(),
		SendTimeout:     cfg.SendTimeout.String(),
		Backlog:         cfg.Backlog,
		MaxPayloadBytes: int64(cfg.MaxPayloadBytes),
		MetricsAddr:     cfg.MetricsAddr,
		Transform: fileTransform{
			OutputName:    t.OutputName,
			OutputValue:   t.OutputValue,
			BBoxClass:     t.BBoxClass,
			CountKey:      t.CountKey,
			EventID:       t.EventID,
			EventCaption:  t.EventCaption,
			AnnotateKey:   t.AnnotateKey,
			AnnotateValue: t.AnnotateValue,
		},
	}
}
