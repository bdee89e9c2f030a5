package logger

// logger 配置
type Options struct {
	Name    string
	Level   string
	EnvMode string
	Skip    int
}

type Option func(o *Options)

func Name(name string) Option {
	return func(o *Options) {
		o.Name = name
	}
}

func Level(level string) Option {
	return func(o *Options) {
		o.Level = level
	}
}

func EnvMode(env string) Option {
	return func(o *Options) {
		o.EnvMode = env
	}
}

func Skip(skip int) Option {
	return func(o *Options) {
		o.Skip = skip
	}
}
