package config

// positive constrains types eligible for skip-on-zero parameter application.
type positive interface {
	~int | ~float32
}

// applyPositive sets params[key] = value when value is positive.
// Zero values are skipped, allowing the step to use its built-in default.
func applyPositive[T positive](params map[string]any, key string, value T) {
	if value > 0 {
		params[key] = value
	}
}

// applyNonEmpty sets params[key] = value when value is non-empty.
func applyNonEmpty(params map[string]any, key, value string) {
	if value != "" {
		params[key] = value
	}
}

// applyBool sets params[key] = value unconditionally.
// Boolean config fields are always applied because false is a meaningful override.
func applyBool(params map[string]any, key string, value bool) {
	params[key] = value
}

// ApplyToParams merges config values into a workflow step parameter map.
// Only non-zero config values override existing parameters; zero values
// indicate "use step default" and are skipped.
// Boolean fields are always applied because false is a meaningful value.
func (c *Config) ApplyToParams(params map[string]any) {
	applyNonEmpty(params, "Manifest", c.Manifest)

	applyNonEmpty(params, "Servers.SourceControl", c.Servers.SourceControl)
	applyNonEmpty(params, "Servers.PackGrep", c.Servers.PackGrep)
	applyNonEmpty(params, "Servers.Chat", c.Servers.Chat)
	applyNonEmpty(params, "Servers.Filesystem", c.Servers.Filesystem)

	di := c.Discovery

	applyPositive(params, "Discovery.RepoWorkers", di.RepoWorkers)

	if len(di.IncludePatterns) > 0 {
		params["Discovery.IncludePatterns"] = append([]string(nil), di.IncludePatterns...)
	}

	if len(di.ExcludePatterns) > 0 {
		params["Discovery.ExcludePatterns"] = append([]string(nil), di.ExcludePatterns...)
	}

	ag := c.Agentic

	applyPositive(params, "Agentic.BatchSize", ag.BatchSize)
	applyPositive(params, "Agentic.Workers", ag.Workers)
	applyNonEmpty(params, "Agentic.Model", ag.Model)
	applyNonEmpty(params, "Agentic.BaseURL", ag.BaseURL)

	pi := c.Pipeline

	applyPositive(params, "Pipeline.MaxParallelSteps", pi.MaxParallelSteps)
	applyPositive(params, "Pipeline.RetryCount", pi.RetryCount)
	applyNonEmpty(params, "Pipeline.StepTimeout", pi.StepTimeout)
	applyBool(params, "Pipeline.StopOnError", pi.StopOnError)

	applyNonEmpty(params, "Slack.Channel", c.Slack.Channel)
	applyNonEmpty(params, "Snapshot.Dir", c.Snapshot.Dir)
	applyBool(params, "Snapshot.Compress", c.Snapshot.Compress)
}
