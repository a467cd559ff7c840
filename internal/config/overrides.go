package config

// Overrides carries command-line values. Nil fields leave the loaded value alone.
type Overrides struct {
	Directory *string
	Host      *string
	Port      *int
	ProxyPort *int
	HTTPS     *bool
	Open      *bool
	Output    *string
	LogLevel  *string
}

// Apply copies every set override into p.
func (o Overrides) Apply(p *Program) {
	setIf(&p.Directory, o.Directory)
	setIf(&p.Host, o.Host)
	setIf(&p.Port, o.Port)
	setIf(&p.ProxyPort, o.ProxyPort)
	setIf(&p.HTTPS, o.HTTPS)
	setIf(&p.Open, o.Open)
	setIf(&p.Output, o.Output)
	if o.LogLevel != nil {
		p.Monitoring.Logging.Level = LogLevel(*o.LogLevel)
	}
}

func setIf[T any](dst *T, src *T) {
	if src != nil {
		*dst = *src
	}
}
