package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/fkfk000/replication-checker/pgoutput"
	"github.com/fkfk000/replication-checker/replication"
	"github.com/pkg/errors"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	outputLog   = "log"
	outputJSON  = "json"
	outputProto = "proto"
	outputNone  = "none"
)

type config struct {
	pgURL            string
	slot             string
	publication      string
	createSlot       bool
	dropSlot         bool
	startLSN         pgoutput.LSN
	feedbackInterval time.Duration
	replyOnRequest   bool
	dbDir            string
	durableFeedback  bool
	maxAge           time.Duration
	output           string
	kafkaBrokers     []string
	kafkaTopic       string
	mgmtPort         int
	debug            bool
}

func setConfigDefaults(v *viper.Viper) {
	v.SetDefault("pgURL", "")
	v.SetDefault("slot", "")
	v.SetDefault("publication", "")
	v.SetDefault("createSlot", true)
	v.SetDefault("dropSlot", false)
	v.SetDefault("startLSN", "")
	v.SetDefault("feedbackInterval", replication.DefaultFeedbackInterval)
	v.SetDefault("replyOnRequest", false)
	v.SetDefault("dbDir", "")
	v.SetDefault("durableFeedback", true)
	v.SetDefault("maxAge", time.Duration(0))
	v.SetDefault("output", outputLog)
	v.SetDefault("kafkaBrokers", "")
	v.SetDefault("kafkaTopic", "")
	v.SetDefault("mgmtPort", -1)
	v.SetDefault("debug", false)
}

func defineFlags(fs *pflag.FlagSet) {
	fs.StringP("pgurl", "u", "", "URL of the Postgres server to replicate from")
	fs.StringP("slot", "s", "", "Name of the logical replication slot")
	fs.StringP("publication", "P", "", "Name of the publication to subscribe to")
	fs.Bool("create-slot", true, "Create the slot if it does not exist")
	fs.Bool("drop-slot", false, "Drop the slot on exit")
	fs.StringP("start", "l", "", "LSN to start from, in the form X/X")
	fs.DurationP("feedback", "f", replication.DefaultFeedbackInterval, "How often to report our position")
	fs.Bool("reply-on-request", false, "Only answer keepalives that ask for a reply")
	fs.StringP("dbdir", "d", "", "Directory for the change database. No database if not set")
	fs.Bool("durable-feedback", true, "With a database, only acknowledge what is stored")
	fs.DurationP("maxage", "m", 0, "Purge stored changes older than this. Zero keeps them forever")
	fs.StringP("output", "o", outputLog, "Print events as \"log\", \"json\", \"proto\" or \"none\"")
	fs.String("kafka-brokers", "", "Comma-separated Kafka brokers to publish changes to")
	fs.String("kafka-topic", "", "Kafka topic for changes")
	fs.IntP("mgmt-port", "p", -1, "Port for the management API. None if negative")
	fs.StringP("config", "C", "", "Read configuration from this file")
	fs.BoolP("debug", "D", false, "Turn on debugging")
	fs.BoolP("help", "h", false, "Print help message")
}

var flagKeys = map[string]string{
	"pgURL":            "pgurl",
	"slot":             "slot",
	"publication":      "publication",
	"createSlot":       "create-slot",
	"dropSlot":         "drop-slot",
	"startLSN":         "start",
	"feedbackInterval": "feedback",
	"replyOnRequest":   "reply-on-request",
	"dbDir":            "dbdir",
	"durableFeedback":  "durable-feedback",
	"maxAge":           "maxage",
	"output":           "output",
	"kafkaBrokers":     "kafka-brokers",
	"kafkaTopic":       "kafka-topic",
	"mgmtPort":         "mgmt-port",
	"debug":            "debug",
}

/*
getConfig reads configuration from flags, then the config file if one was
named, then environment variables prefixed "RC_", and checks it.
*/
func getConfig(fs *pflag.FlagSet, v *viper.Viper) (*config, error) {
	setConfigDefaults(v)
	for key, flag := range flagKeys {
		if err := v.BindPFlag(key, fs.Lookup(flag)); err != nil {
			return nil, err
		}
	}

	if cf, _ := fs.GetString("config"); cf != "" {
		v.SetConfigFile(cf)
		if err := v.ReadInConfig(); err != nil {
			return nil, errors.Wrapf(err, "reading %s", cf)
		}
	} else {
		v.SetConfigName(appName)
		v.AddConfigPath(fmt.Sprintf("/etc/%s/", appName))
		v.AddConfigPath(fmt.Sprintf("%s/.%s", os.Getenv("HOME"), appName))
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			if _, notFound := err.(viper.ConfigFileNotFoundError); !notFound {
				return nil, err
			}
		}
	}

	v.SetEnvPrefix("rc")
	v.AutomaticEnv()

	c := &config{
		pgURL:            v.GetString("pgURL"),
		slot:             v.GetString("slot"),
		publication:      v.GetString("publication"),
		createSlot:       v.GetBool("createSlot"),
		dropSlot:         v.GetBool("dropSlot"),
		feedbackInterval: v.GetDuration("feedbackInterval"),
		replyOnRequest:   v.GetBool("replyOnRequest"),
		dbDir:            v.GetString("dbDir"),
		durableFeedback:  v.GetBool("durableFeedback"),
		maxAge:           v.GetDuration("maxAge"),
		output:           v.GetString("output"),
		kafkaTopic:       v.GetString("kafkaTopic"),
		mgmtPort:         v.GetInt("mgmtPort"),
		debug:            v.GetBool("debug"),
	}

	for _, b := range strings.Split(v.GetString("kafkaBrokers"), ",") {
		if b = strings.TrimSpace(b); b != "" {
			c.kafkaBrokers = append(c.kafkaBrokers, b)
		}
	}

	if start := v.GetString("startLSN"); start != "" {
		lsn, err := pgoutput.ParseLSN(start)
		if err != nil {
			return nil, errors.Wrap(err, "invalid start LSN")
		}
		c.startLSN = lsn
	}

	return c, c.validate()
}

func (c *config) validate() error {
	if c.pgURL == "" || c.slot == "" || c.publication == "" {
		return errors.New("The \"pgurl\", \"slot\", and \"publication\" parameters must be set")
	}
	switch c.output {
	case outputLog, outputJSON, outputProto, outputNone:
	default:
		return errors.Errorf("Invalid output %q", c.output)
	}
	if c.feedbackInterval <= 0 {
		return errors.New("Feedback interval must be positive")
	}
	if c.maxAge < 0 {
		return errors.New("Maximum age must not be negative")
	}
	if c.maxAge > 0 && c.dbDir == "" {
		return errors.New("\"maxage\" needs \"dbdir\"")
	}
	if len(c.kafkaBrokers) > 0 && c.kafkaTopic == "" {
		return errors.New("\"kafka-topic\" must be set with \"kafka-brokers\"")
	}
	return nil
}
