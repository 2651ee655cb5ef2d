package config

import (
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/go-viper/mapstructure/v2"
	"github.com/knadh/koanf/maps"
	"github.com/knadh/koanf/parsers/toml"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/tgdrive/filebox/internal/duration"
)

const EnvPrefix = "FILEBOX_"

type ServerConfig struct {
	Port             int           `koanf:"port" default:"8080" description:"HTTP port"`
	GracefulShutdown time.Duration `koanf:"graceful-shutdown" default:"10s" description:"Time allowed for in-flight requests on shutdown"`
	ReadTimeout      time.Duration `koanf:"read-timeout" default:"1h" description:"HTTP read timeout"`
	WriteTimeout     time.Duration `koanf:"write-timeout" default:"1h" description:"HTTP write timeout"`
	FrontendURL      string        `koanf:"frontend-url" default:"http://localhost:5173" description:"Base URL used in share links"`
	PublicURL        string        `koanf:"public-url" default:"http://localhost:8080" description:"Public base URL of this server, used for locally served blobs"`
	AllowedOrigins   []string      `koanf:"allowed-origins" default:"http://localhost:5173" description:"CORS allowed origins"`
	AuthRate         float64       `koanf:"auth-rate" default:"5" description:"Auth requests per second allowed per client"`
	AuthBurst        int           `koanf:"auth-burst" default:"10" description:"Auth request burst per client"`
}

type LoggingConfig struct {
	Level string `koanf:"level" default:"info" description:"Logging level"`
	File  string `koanf:"file" description:"Logging file path"`
}

type JWTConfig struct {
	Secret    string        `koanf:"secret" validate:"required" description:"Secret used to sign access tokens"`
	AccessTTL time.Duration `koanf:"access-ttl" default:"24h" description:"Access token lifetime"`
}

type AuthConfig struct {
	OTPTTL         time.Duration `koanf:"otp-ttl" default:"15m" description:"One-time password lifetime"`
	RefreshTTL     time.Duration `koanf:"refresh-ttl" default:"7d" description:"Refresh session lifetime"`
	CookieSecure   bool          `koanf:"cookie-secure" default:"false" description:"Set the Secure attribute on the refresh cookie"`
	ResendCooldown time.Duration `koanf:"resend-cooldown" default:"30s" description:"Minimum time between two code mails to one account, 0 disables it"`
}

type PoolConfig struct {
	MaxOpenConnections int           `koanf:"max-open-connections" default:"25" description:"Database max open connections"`
	MaxIdleConnections int           `koanf:"max-idle-connections" default:"25" description:"Database max idle connections"`
	MaxLifetime        time.Duration `koanf:"max-lifetime" default:"10m" description:"Database max connection lifetime"`
}

type DBConfig struct {
	DataSource string        `koanf:"data-source" validate:"required" description:"Postgres connection string, or \"memory\" for a volatile store"`
	LogLevel   string        `koanf:"log-level" default:"warn" validate:"oneof=silent error warn info" description:"Query log level: silent, error, warn or info"`
	SlowQuery  time.Duration `koanf:"slow-query" default:"200ms" description:"Queries slower than this are logged as warnings"`
	Pool       PoolConfig    `koanf:"pool"`
}

type CacheConfig struct {
	MaxSize   int           `koanf:"max-size" default:"10485760" description:"Memory cache size in bytes"`
	RedisAddr string        `koanf:"redis-addr" description:"Redis address, enables the redis cache"`
	RedisPass string        `koanf:"redis-pass" description:"Redis password"`
	TTL       time.Duration `koanf:"ttl" default:"10m" description:"How long cached display names are kept"`
}

type S3Config struct {
	Bucket       string `koanf:"bucket" description:"S3 bucket"`
	Region       string `koanf:"region" default:"us-east-1" description:"S3 region"`
	Endpoint     string `koanf:"endpoint" description:"Custom S3 endpoint"`
	AccessKey    string `koanf:"access-key" description:"S3 access key"`
	SecretKey    string `koanf:"secret-key" description:"S3 secret key"`
	PublicURL    string `koanf:"public-url" description:"Public base URL of the bucket"`
	UsePathStyle bool   `koanf:"use-path-style" default:"false" description:"Use path-style addressing"`
}

type BoltConfig struct {
	Path string `koanf:"path" default:"filebox-blobs.db" description:"Bolt blob database file"`
}

type WebDAVConfig struct {
	URL      string `koanf:"url" description:"WebDAV server URL"`
	Username string `koanf:"username" description:"WebDAV username"`
	Password string `koanf:"password" description:"WebDAV password"`
	Root     string `koanf:"root" default:"/filebox" description:"WebDAV directory holding blobs"`
}

type SFTPConfig struct {
	Addr     string `koanf:"addr" description:"SFTP server host:port"`
	Username string `koanf:"username" description:"SFTP username"`
	Password string `koanf:"password" description:"SFTP password"`
	HostKey  string `koanf:"host-key" description:"Server public key in authorized_keys format"`
	Root     string `koanf:"root" default:"filebox" description:"SFTP directory holding blobs"`
}

type StorageConfig struct {
	Type   string       `koanf:"type" default:"bolt" validate:"oneof=s3 bolt webdav sftp memory" description:"Object store backend: s3, bolt, webdav, sftp or memory"`
	S3     S3Config     `koanf:"s3"`
	Bolt   BoltConfig   `koanf:"bolt"`
	WebDAV WebDAVConfig `koanf:"webdav"`
	SFTP   SFTPConfig   `koanf:"sftp"`
}

type MailConfig struct {
	Host     string `koanf:"host" description:"SMTP host, mails are only logged when empty"`
	Port     int    `koanf:"port" default:"587" description:"SMTP port"`
	Username string `koanf:"username" description:"SMTP username"`
	Password string `koanf:"password" description:"SMTP password"`
	From     string `koanf:"from" default:"filebox <no-reply@filebox.local>" description:"Sender address"`
}

type FilesConfig struct {
	MaxUploadSize int64 `koanf:"max-upload-size" default:"104857600" description:"Maximum upload size in bytes"`
	EmptyListOK   bool  `koanf:"empty-list-ok" default:"false" description:"Answer an empty listing with 200 instead of 404"`
}

type CronJobConfig struct {
	Enable           bool          `koanf:"enable" default:"true" description:"Run background jobs"`
	SweepInterval    time.Duration `koanf:"sweep-interval" default:"1h" description:"Orphaned blob sweep interval"`
	PurgeInterval    time.Duration `koanf:"purge-interval" default:"12h" description:"Unverified account purge interval"`
	SweepBatch       int           `koanf:"sweep-batch" default:"100" description:"Orphaned blobs released per sweep"`
	PendingRetention time.Duration `koanf:"pending-retention" default:"7d" description:"How long unverified accounts are kept after their code expires"`
}

type ServerCmdConfig struct {
	Server   ServerConfig  `koanf:"server"`
	Log      LoggingConfig `koanf:"log"`
	JWT      JWTConfig     `koanf:"jwt"`
	Auth     AuthConfig    `koanf:"auth"`
	DB       DBConfig      `koanf:"db"`
	Cache    CacheConfig   `koanf:"cache"`
	Storage  StorageConfig `koanf:"storage"`
	Mail     MailConfig    `koanf:"mail"`
	Files    FilesConfig   `koanf:"files"`
	CronJobs CronJobConfig `koanf:"cron"`
}

type MigrateCmdConfig struct {
	DB  DBConfig      `koanf:"db"`
	Log LoggingConfig `koanf:"log"`
}

type CheckCmdConfig struct {
	DB      DBConfig      `koanf:"db"`
	Log     LoggingConfig `koanf:"log"`
	Storage StorageConfig `koanf:"storage"`
	Server  ServerConfig  `koanf:"server"`
}

type ConfigLoader struct {
	k        *koanf.Koanf
	defaults map[string]any
	flagKeys map[string]string
	envKeys  map[string]string
	target   any
}

func NewConfigLoader() *ConfigLoader {
	return &ConfigLoader{
		k:        koanf.New("."),
		defaults: map[string]any{},
		flagKeys: map[string]string{},
		envKeys:  map[string]string{},
	}
}

// RegisterFlags creates one flag per leaf field of cfg, named after its
// dotted koanf path with dots replaced by dashes.
func (cl *ConfigLoader) RegisterFlags(flags *pflag.FlagSet, prefix string, cfg any, skipConfigFlag bool) error {
	if !skipConfigFlag && flags.Lookup("config") == nil {
		flags.StringP("config", "c", "", "Config file path (default $HOME/.filebox/config.toml)")
	}
	t := reflect.TypeOf(cfg)
	if t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	if t.Kind() != reflect.Struct {
		return fmt.Errorf("config must be a struct, got %s", t.Kind())
	}
	return cl.registerStruct(flags, prefix, t)
}

var durationType = reflect.TypeOf(time.Duration(0))

func (cl *ConfigLoader) registerStruct(flags *pflag.FlagSet, prefix string, t reflect.Type) error {
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		tag := field.Tag.Get("koanf")
		if tag == "" || tag == "-" {
			continue
		}
		key := prefix + tag
		if field.Type.Kind() == reflect.Struct && field.Type != durationType {
			if err := cl.registerStruct(flags, key+".", field.Type); err != nil {
				return err
			}
			continue
		}
		name := strings.ReplaceAll(key, ".", "-")
		def := field.Tag.Get("default")
		desc := field.Tag.Get("description")
		if err := addFlag(flags, field.Type, name, def, desc); err != nil {
			return fmt.Errorf("flag %s: %w", name, err)
		}
		cl.flagKeys[name] = key
		cl.envKeys[envName(key)] = key
		if def != "" {
			if field.Type.Kind() == reflect.Slice {
				cl.defaults[key] = strings.Split(def, ",")
			} else {
				cl.defaults[key] = def
			}
		}
	}
	return nil
}

func addFlag(flags *pflag.FlagSet, t reflect.Type, name, def, desc string) error {
	if flags.Lookup(name) != nil {
		return nil
	}
	if t == durationType {
		var d time.Duration
		if def != "" {
			v, err := duration.Parse(def)
			if err != nil {
				return err
			}
			d = v
		}
		duration.DurationVar(flags, new(time.Duration), name, d, desc)
		return nil
	}
	switch t.Kind() {
	case reflect.String:
		flags.String(name, def, desc)
	case reflect.Bool:
		v, err := parseOr(def, false, strconv.ParseBool)
		if err != nil {
			return err
		}
		flags.Bool(name, v, desc)
	case reflect.Int:
		v, err := parseOr(def, 0, strconv.Atoi)
		if err != nil {
			return err
		}
		flags.Int(name, v, desc)
	case reflect.Int64:
		v, err := parseOr(def, 0, func(s string) (int64, error) { return strconv.ParseInt(s, 10, 64) })
		if err != nil {
			return err
		}
		flags.Int64(name, v, desc)
	case reflect.Float64:
		v, err := parseOr(def, 0, func(s string) (float64, error) { return strconv.ParseFloat(s, 64) })
		if err != nil {
			return err
		}
		flags.Float64(name, v, desc)
	case reflect.Slice:
		var v []string
		if def != "" {
			v = strings.Split(def, ",")
		}
		flags.StringSlice(name, v, desc)
	default:
		return fmt.Errorf("unsupported type %s", t)
	}
	return nil
}

func parseOr[T any](s string, zero T, parse func(string) (T, error)) (T, error) {
	if s == "" {
		return zero, nil
	}
	return parse(s)
}

func envName(key string) string {
	return EnvPrefix + strings.ToUpper(strings.NewReplacer(".", "_", "-", "_").Replace(key))
}

// Load merges, in increasing precedence, struct defaults, the config file,
// FILEBOX_* environment variables and explicitly set flags into cfg.
func (cl *ConfigLoader) Load(cmd *cobra.Command, cfg any) error {
	if err := cl.k.Load(flatProvider(cl.defaults), nil); err != nil {
		return fmt.Errorf("error loading defaults: %w", err)
	}

	path, err := configPath(cmd.Flags())
	if err != nil {
		return err
	}
	if path != "" {
		var parser koanf.Parser = toml.Parser()
		switch strings.ToLower(filepath.Ext(path)) {
		case ".yaml", ".yml":
			parser = yaml.Parser()
		}
		if err := cl.k.Load(file.Provider(path), parser); err != nil {
			return fmt.Errorf("error reading config file: %w", err)
		}
	}

	if err := cl.k.Load(env.Provider(EnvPrefix, ".", func(s string) string {
		return cl.envKeys[s]
	}), nil); err != nil {
		return fmt.Errorf("error loading environment: %w", err)
	}

	changed := map[string]any{}
	cmd.Flags().Visit(func(f *pflag.Flag) {
		key, ok := cl.flagKeys[f.Name]
		if !ok {
			return
		}
		if f.Value.Type() == "stringSlice" {
			v, _ := cmd.Flags().GetStringSlice(f.Name)
			changed[key] = v
			return
		}
		changed[key] = f.Value.String()
	})
	if err := cl.k.Load(flatProvider(changed), nil); err != nil {
		return fmt.Errorf("error loading flags: %w", err)
	}

	err = cl.k.UnmarshalWithConf("", cfg, koanf.UnmarshalConf{
		Tag: "koanf",
		DecoderConfig: &mapstructure.DecoderConfig{
			DecodeHook: mapstructure.ComposeDecodeHookFunc(
				StringToDurationHook(),
				mapstructure.StringToSliceHookFunc(","),
			),
			WeaklyTypedInput: true,
			Result:           cfg,
			TagName:          "koanf",
		},
	})
	if err != nil {
		return fmt.Errorf("failed to decode config: %w", err)
	}
	cl.target = cfg
	return nil
}

func configPath(flags *pflag.FlagSet) (string, error) {
	if f := flags.Lookup("config"); f != nil && f.Value.String() != "" {
		return f.Value.String(), nil
	}
	candidates := []string{"config.toml", "config.yaml"}
	if home, err := os.UserHomeDir(); err == nil {
		candidates = append(candidates,
			filepath.Join(home, ".filebox", "config.toml"),
			filepath.Join(home, ".filebox", "config.yaml"))
	}
	for _, c := range candidates {
		if _, err := os.Stat(c); err == nil {
			return c, nil
		}
	}
	return "", nil
}

// Validate checks the struct passed to the last Load call.
func (cl *ConfigLoader) Validate() error {
	if cl.target == nil {
		return fmt.Errorf("config not loaded")
	}
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		return f.Tag.Get("koanf")
	})
	err := v.Struct(cl.target)
	if err == nil {
		return nil
	}
	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return err
	}
	var missing, invalid []string
	for _, fe := range verrs {
		ns := fe.Namespace()
		if i := strings.Index(ns, "."); i >= 0 {
			ns = ns[i+1:]
		}
		if fe.Tag() == "required" {
			missing = append(missing, ns)
		} else {
			invalid = append(invalid, fmt.Sprintf("%s (%s)", ns, fe.Tag()))
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("required configuration values not set: %s", strings.Join(missing, ", "))
	}
	return fmt.Errorf("invalid configuration values: %s", strings.Join(invalid, ", "))
}

func StringToDurationHook() mapstructure.DecodeHookFunc {
	return func(f reflect.Type, t reflect.Type, data any) (any, error) {
		if f.Kind() != reflect.String || t != durationType {
			return data, nil
		}
		return duration.Parse(data.(string))
	}
}

// flatProvider feeds a map of dotted keys to koanf.
type flatProvider map[string]any

func (p flatProvider) ReadBytes() ([]byte, error) {
	return nil, fmt.Errorf("flatProvider does not support ReadBytes")
}

func (p flatProvider) Read() (map[string]any, error) {
	return maps.Unflatten(p, "."), nil
}
