package cmd

import (
	"fmt"
	"net/http"
	_ "net/http/pprof" //ok in production https://medium.com/google-cloud/continuous-profiling-of-go-programs-96d4416af77b
	"os"
	"os/signal"
	"strconv"
	"strings"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/Goal651/discord-bot-server/internal/relay"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "run the chat event relay",
	Long: `Serve runs the relay: it connects to the upstream gateway event
feed, accepts websocket clients on /relay and serves the channels API
on /api/channels. Set parameters with environment variables, for
example:

export RELAY_AUDIENCE=wss://relay.example.io
export RELAY_LOG_LEVEL=warn
export RELAY_LOG_FORMAT=json
export RELAY_LOG_FILE=stdout
export RELAY_PORT=3000
export RELAY_PORT_PROFILE=6061
export RELAY_PROFILE=false
export RELAY_SECRET=somesecret
export RELAY_UPSTREAM_FEED=wss://gateway.example.io/feed
export RELAY_UPSTREAM_API=https://api.example.io
export RELAY_UPSTREAM_TOKEN=bottoken
export RELAY_CONNECT_TIMEOUT=30s
relay serve

Notes:
RELAY_UPSTREAM_FEED is the gateway event stream; failing to reach it
within RELAY_CONNECT_TIMEOUT at startup is fatal.
`,
	Run: func(cmd *cobra.Command, args []string) {

		viper.SetEnvPrefix("RELAY")
		viper.AutomaticEnv()

		viper.SetDefault("audience", "") //so we can check it's been provided
		viper.SetDefault("connect_timeout", "30s")
		viper.SetDefault("log_file", "stdout")
		viper.SetDefault("log_format", "json")
		viper.SetDefault("log_level", "warn")
		viper.SetDefault("port", 3000)
		viper.SetDefault("port_profile", 6061)
		viper.SetDefault("profile", false)
		viper.SetDefault("secret", "")         //so we can check it's been provided
		viper.SetDefault("upstream_feed", "")  //so we can check it's been provided
		viper.SetDefault("upstream_api", "")   //so we can check it's been provided
		viper.SetDefault("upstream_token", "")

		audience := viper.GetString("audience")
		connectTimeoutStr := viper.GetString("connect_timeout")
		logFile := viper.GetString("log_file")
		logFormat := viper.GetString("log_format")
		logLevel := viper.GetString("log_level")
		port := viper.GetInt("port")
		portProfile := viper.GetInt("port_profile")
		profile := viper.GetBool("profile")
		secret := viper.GetString("secret")
		upstreamFeed := viper.GetString("upstream_feed")
		upstreamAPI := viper.GetString("upstream_api")
		upstreamToken := viper.GetString("upstream_token")

		// Sanity checks
		ok := true

		if audience == "" {
			fmt.Println("You must set RELAY_AUDIENCE")
			ok = false
		}

		if secret == "" {
			fmt.Println("You must set RELAY_SECRET")
			ok = false
		}

		if upstreamFeed == "" {
			fmt.Println("You must set RELAY_UPSTREAM_FEED")
			ok = false
		}

		if upstreamAPI == "" {
			fmt.Println("You must set RELAY_UPSTREAM_API")
			ok = false
		}

		if !ok {
			os.Exit(1)
		}

		connectTimeout, err := time.ParseDuration(connectTimeoutStr)

		if err != nil {
			fmt.Print("cannot parse duration in RELAY_CONNECT_TIMEOUT=" + connectTimeoutStr)
			os.Exit(1)
		}

		// set up logging
		switch strings.ToLower(logLevel) {
		case "trace":
			log.SetLevel(log.TraceLevel)
		case "debug":
			log.SetLevel(log.DebugLevel)
		case "info":
			log.SetLevel(log.InfoLevel)
		case "warn":
			log.SetLevel(log.WarnLevel)
		case "error":
			log.SetLevel(log.ErrorLevel)
		case "fatal":
			log.SetLevel(log.FatalLevel)
		case "panic":
			log.SetLevel(log.PanicLevel)
		default:
			fmt.Println("RELAY_LOG_LEVEL can be trace, debug, info, warn, error, fatal or panic but not " + logLevel)
			os.Exit(1)
		}

		switch strings.ToLower(logFormat) {
		case "json":
			log.SetFormatter(&log.JSONFormatter{})
		case "text":
			log.SetFormatter(&log.TextFormatter{})
		default:
			fmt.Println("RELAY_LOG_FORMAT can be json or text but not " + logFormat)
			os.Exit(1)
		}

		if strings.ToLower(logFile) == "stdout" {

			log.SetOutput(os.Stdout)

		} else {

			file, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0666)
			if err == nil {
				log.SetOutput(file)
			} else {
				log.Infof("Failed to log to %s, logging to default stderr", logFile)
			}
		}

		// Report useful info
		log.Infof("Audience: [%s]", audience)
		log.Infof("Connect timeout: [%s]", connectTimeout)
		log.Infof("Log file: [%s]", logFile)
		log.Infof("Log format: [%s]", logFormat)
		log.Infof("Log level: [%s]", logLevel)
		log.Infof("Port: [%d]", port)
		log.Infof("Port for profile: [%d]", portProfile)
		log.Infof("Profiling is on: [%t]", profile)
		log.Infof("Upstream feed: [%s]", upstreamFeed)
		log.Infof("Upstream API: [%s]", upstreamAPI)

		// Optionally start the profiling server
		if profile {
			go func() {
				url := "localhost:" + strconv.Itoa(portProfile)
				err := http.ListenAndServe(url, nil)
				if err != nil {
					log.Errorf(err.Error())
				}
			}()
		}

		var wg sync.WaitGroup

		closed := make(chan struct{})

		c := make(chan os.Signal, 1)

		signal.Notify(c, os.Interrupt)

		go func() {
			for range c {
				close(closed)
				wg.Wait()
				os.Exit(0)
			}
		}()

		wg.Add(1)

		config := relay.Config{
			Port:            port,
			Audience:        audience,
			Secret:          secret,
			UpstreamFeedURL: upstreamFeed,
			UpstreamAPIURL:  upstreamAPI,
			UpstreamToken:   upstreamToken,
			ConnectTimeout:  connectTimeout,
		}

		go relay.Relay(closed, &wg, config)

		wg.Wait()

	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}
