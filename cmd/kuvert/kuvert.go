package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/urfave/cli/v2"

	"github.com/modfin/kuvert"
)

func main() {
	app := &cli.App{
		Name:  "kuvert",
		Usage: "a cli for the kuvert transactional email api",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "host",
				Usage:   "base url of the kuvert api",
				Value:   "http://localhost:8080",
				EnvVars: []string{"KUVERT_HOST"},
			},
			&cli.StringFlag{
				Name:    "api-key",
				Usage:   "api key of the sending project",
				EnvVars: []string{"KUVERT_API_KEY"},
			},
			&cli.StringFlag{
				Name:    "token",
				Usage:   "bearer token for project and template management",
				EnvVars: []string{"KUVERT_TOKEN"},
			},
		},
		Commands: []*cli.Command{
			{
				Name:  "send",
				Usage: "submit a send and print the record id",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "template", Usage: "template id", Required: true},
					&cli.StringSliceFlag{Name: "data", Usage: "variable as key=value, repeatable; the recipient goes in email=..."},
				},
				Action: send,
			},
			{
				Name:      "status",
				Usage:     "print the status of a send record",
				ArgsUsage: "<send-id>",
				Action:    status,
			},
			{
				Name:  "create-project",
				Usage: "create a project and print its id and api key",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "name", Required: true},
				},
				Action: createProject,
			},
			{
				Name:  "create-template",
				Usage: "create a template and print its id",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "project", Usage: "project id", Required: true},
					&cli.StringFlag{Name: "name", Required: true},
					&cli.StringFlag{Name: "html"},
					&cli.StringFlag{Name: "text"},
					&cli.StringSliceFlag{Name: "require", Usage: "required variable, repeatable"},
				},
				Action: createTemplate,
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, "got err", err)
		os.Exit(1)
	}
}

func client(c *cli.Context) *kuvert.Client {
	cl := kuvert.NewClient(c.String("host"), c.String("api-key"))
	if token := c.String("token"); token != "" {
		cl = cl.WithToken(token)
	}
	return cl
}

func parseData(kvs []string) (map[string]string, error) {
	data := map[string]string{}
	for _, kv := range kvs {
		k, v, found := strings.Cut(kv, "=")
		if !found || k == "" {
			return nil, fmt.Errorf("data %q is not on the form key=value", kv)
		}
		data[k] = v
	}
	return data, nil
}

func send(c *cli.Context) error {
	data, err := parseData(c.StringSlice("data"))
	if err != nil {
		return err
	}
	ack, err := client(c).Send(c.Context, c.String("template"), data)
	if err != nil {
		return err
	}
	fmt.Println(ack.Id)
	return nil
}

func status(c *cli.Context) error {
	id := c.Args().First()
	if id == "" {
		return errors.New("a send id must be provided")
	}
	st, err := client(c).Status(c.Context, id)
	if err != nil {
		return err
	}
	return json.NewEncoder(os.Stdout).Encode(st)
}

func createProject(c *cli.Context) error {
	resp, err := client(c).CreateProject(c.Context, c.String("name"))
	if err != nil {
		return err
	}
	fmt.Println("id:     ", resp.Id)
	fmt.Println("api_key:", resp.ApiKey)
	return nil
}

func createTemplate(c *cli.Context) error {
	resp, err := client(c).CreateTemplate(c.Context, kuvert.CreateTemplateRequest{
		ProjectId:         c.String("project"),
		Name:              c.String("name"),
		HTML:              c.String("html"),
		Text:              c.String("text"),
		RequiredVariables: c.StringSlice("require"),
	})
	if err != nil {
		return err
	}
	fmt.Println(resp.Id)
	return nil
}
