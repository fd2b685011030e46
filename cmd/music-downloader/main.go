package main

import "go-music-downloader/cmd/music-downloader/cmd"

func main() {
	cmd.Execute()
}
