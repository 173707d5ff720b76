package cmd

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "apt-attendance",
	Short: "Camera-driven attendance tracking with face recognition",
	Long: `apt-attendance turns live camera frames into attendance records.
Frames pass through face detection, anti-spoofing and identity embedding on
a model server, get matched against an enrolled gallery, and are smoothed
into debounced check-in/check-out events per student.`,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)
}

func initConfig() {
	// .env file is optional, don't fail if not found
	_ = godotenv.Load()
}
