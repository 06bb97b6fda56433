// soundsctl is a small client for the transcription API: submit a song,
// poll a job, approve a finished version.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
)

type Config struct {
	Api   string `json:"api"`
	Token string `json:"token"`
}

func loadConfiguration(file string) (Config, error) {
	var config Config
	f, err := os.Open(file)
	if err != nil {
		return config, err
	}
	defer f.Close()
	err = json.NewDecoder(f).Decode(&config)
	return config, err
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: soundsctl <submit|status|approve> [flags]")
	os.Exit(2)
}

func main() {
	if len(os.Args) < 2 {
		usage()
	}

	configPath := "configuration.json"
	if v := os.Getenv("SOUNDSCTL_CONFIG"); v != "" {
		configPath = v
	}
	config, err := loadConfiguration(configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "load configuration:", err)
		os.Exit(1)
	}

	switch os.Args[1] {
	case "submit":
		err = doSubmit(os.Args[2:], config)
	case "status":
		err = doStatus(os.Args[2:], config)
	case "approve":
		err = doApprove(os.Args[2:], config)
	default:
		fmt.Fprintf(os.Stderr, "%q is not a valid command.\n", os.Args[1])
		usage()
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func doSubmit(args []string, config Config) error {
	cmd := flag.NewFlagSet("submit", flag.ExitOnError)
	artist := cmd.String("artist", "", "artist name")
	album := cmd.String("album", "", "album name")
	title := cmd.String("title", "", "song title")
	audio := cmd.String("audio", "", "audio file to upload")
	lyrics := cmd.String("lyrics", "", "optional lyrics file")
	cmd.Parse(args)

	if *audio == "" {
		return fmt.Errorf("submit: -audio is required")
	}
	fields := map[string]string{
		"artist": *artist,
		"album":  *album,
		"title":  *title,
	}
	files := map[string]string{"audio": *audio}
	if *lyrics != "" {
		files["lyrics"] = *lyrics
	}

	body, err := postFiles(config.Api+"/transcription", config.Token, fields, files)
	if err != nil {
		return err
	}
	fmt.Println(string(body))
	return nil
}

func doStatus(args []string, config Config) error {
	cmd := flag.NewFlagSet("status", flag.ExitOnError)
	job := cmd.String("job", "", "job id")
	cmd.Parse(args)

	if *job == "" {
		return fmt.Errorf("status: -job is required")
	}
	body, err := getRequest(config.Api+"/transcription/"+*job, config.Token)
	if err != nil {
		return err
	}
	fmt.Println(string(body))
	return nil
}

func doApprove(args []string, config Config) error {
	cmd := flag.NewFlagSet("approve", flag.ExitOnError)
	artist := cmd.String("artist", "", "artist name")
	album := cmd.String("album", "", "album name")
	title := cmd.String("title", "", "song title")
	version := cmd.Int("version", 0, "version to approve")
	cmd.Parse(args)

	payload, err := json.Marshal(map[string]interface{}{
		"artist":  *artist,
		"album":   *album,
		"title":   *title,
		"version": *version,
	})
	if err != nil {
		return err
	}
	body, err := postJSON(config.Api+"/transcription/approve", config.Token, payload)
	if err != nil {
		return err
	}
	fmt.Println(string(body))
	return nil
}
