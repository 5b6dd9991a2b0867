package bridgesvc

// Cfg bridge-service 配置，config/bridge-service.yaml
type Cfg struct {
	Name string `yaml:"name" mapstructure:"name"`
	HTTP HTTP   `yaml:"http" mapstructure:"http"`
	Log  Log    `yaml:"log" mapstructure:"log"`

	Db    DBConfig `yaml:"db" mapstructure:"db"`
	Redis Redis    `yaml:"redis" mapstructure:"redis"`

	Deposit Deposit `yaml:"deposit" mapstructure:"deposit"`
	Bridge  Bridge  `yaml:"bridge" mapstructure:"bridge"`
}

type HTTP struct {
	Addr string `yaml:"addr" mapstructure:"addr"`
}

type Log struct {
	Level string `yaml:"level" mapstructure:"level"`
	File  string `yaml:"file" mapstructure:"file"`
}

type DBConfig struct {
	SourceName             string `yaml:"source_name" mapstructure:"source_name"`
	MaxOpenConns           int    `yaml:"max_open_conns" mapstructure:"max_open_conns"`
	MaxIdleConns           int    `yaml:"max_idle_conns" mapstructure:"max_idle_conns"`
	ConnMaxLifetimeSeconds int    `yaml:"conn_max_lifetime_seconds" mapstructure:"conn_max_lifetime_seconds"`
}

type Redis struct {
	Addr     string `yaml:"addr" mapstructure:"addr"`
	Database int    `yaml:"db" mapstructure:"db"`
	Auth     string `yaml:"auth" mapstructure:"auth"`
}

type Deposit struct {
	Chain                 string `yaml:"chain" mapstructure:"chain"`
	RequiredConfirmations int64  `yaml:"required_confirmations" mapstructure:"required_confirmations"`
}

type Bridge struct {
	Workers          int    `yaml:"workers" mapstructure:"workers"`
	QueueSize        int    `yaml:"queue_size" mapstructure:"queue_size"`
	SourceAsset      string `yaml:"source_asset" mapstructure:"source_asset"`
	PlatformCurrency string `yaml:"platform_currency" mapstructure:"platform_currency"`
	Rate             string `yaml:"rate" mapstructure:"rate"` // 固定汇率，decimal 字符串
	GracePeriodSec   int    `yaml:"grace_period_sec" mapstructure:"grace_period_sec"`
	SweepIntervalSec int    `yaml:"sweep_interval_sec" mapstructure:"sweep_interval_sec"`
}
