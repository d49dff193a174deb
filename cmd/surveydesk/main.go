package main

import "surveydesk-go/cmd/surveydesk/cmd"

func main() {
	cmd.Execute()
}
