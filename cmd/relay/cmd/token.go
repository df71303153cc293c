package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/Goal651/discord-bot-server/pkg/token"
)

// tokenCmd mints a bearer token for authenticating to the relay
var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "relay token generates a new token for authenticating to the relay",
	Long: `Set the operating parameters with environment variables, for example

export RELAY_TOKEN_LIFETIME=3600
export RELAY_TOKEN_SECRET=somesecret
export RELAY_TOKEN_AUDIENCE=wss://relay.example.io
export RELAY_TOKEN_USER_ID=1234567890
export RELAY_TOKEN_USERNAME=alice
export RELAY_TOKEN_DISPLAY_NAME="Alice"
bearer=$(relay token)
`,

	Run: func(cmd *cobra.Command, args []string) {

		viper.SetEnvPrefix("RELAY_TOKEN")
		viper.AutomaticEnv()

		lifetime := viper.GetInt64("lifetime")
		audience := viper.GetString("audience")
		secret := viper.GetString("secret")
		userID := viper.GetString("user_id")
		username := viper.GetString("username")
		displayName := viper.GetString("display_name")

		// check inputs

		if lifetime == 0 {
			fmt.Println("RELAY_TOKEN_LIFETIME not set")
			os.Exit(1)
		}
		if secret == "" {
			fmt.Println("RELAY_TOKEN_SECRET not set")
			os.Exit(1)
		}
		if audience == "" {
			fmt.Println("RELAY_TOKEN_AUDIENCE not set")
			os.Exit(1)
		}
		if userID == "" {
			fmt.Println("RELAY_TOKEN_USER_ID not set")
			os.Exit(1)
		}
		if displayName == "" {
			displayName = username
		}
		if displayName == "" {
			fmt.Println("RELAY_TOKEN_DISPLAY_NAME or RELAY_TOKEN_USERNAME must be set")
			os.Exit(1)
		}

		iat := time.Now().Add(-time.Second) //ensure immediately usable
		nbf := iat
		exp := iat.Add(time.Duration(lifetime) * time.Second)

		bearer, err := token.New(iat, nbf, exp, audience, userID, username, displayName, secret)

		if err != nil {
			fmt.Println(err)
			os.Exit(1)
		}

		fmt.Println(bearer)
	},
}

func init() {
	rootCmd.AddCommand(tokenCmd)
}
