package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

// pulsectl es un cliente de línea de comandos contra un pulsehub corriendo.
// Pensado para operar y depurar: ver salud, disparar consultas y cortar
// conexiones sin abrir un navegador.

type client struct {
	BaseURL   string
	Owner     string // valor de la cookie phub_owner
	OutFormat string // "json" | "text"
	HTTP      *http.Client
}

func (c *client) do(method, path string) (int, http.Header, []byte, error) {
	url := strings.TrimRight(c.BaseURL, "/") + path
	req, err := http.NewRequest(method, url, nil)
	if err != nil {
		return 0, nil, nil, err
	}
	if c.Owner != "" {
		req.AddCookie(&http.Cookie{Name: "phub_owner", Value: c.Owner})
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return 0, nil, nil, err
	}
	defer resp.Body.Close()
	b, _ := io.ReadAll(resp.Body)
	return resp.StatusCode, resp.Header, b, nil
}

func (c *client) print(status int, body []byte) {
	if c.OutFormat == "json" {
		var v any
		if json.Unmarshal(body, &v) == nil {
			p, _ := json.MarshalIndent(v, "", "  ")
			fmt.Println(string(p))
			return
		}
	}
	if len(body) > 0 {
		fmt.Println(string(body))
	} else {
		fmt.Printf("status=%d\n", status)
	}
}

func main() {
	cli := &client{
		HTTP: &http.Client{
			Timeout: 30 * time.Second,
			// los endpoints de conexión redirigen; queremos ver el Location
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
	}

	root := &cobra.Command{
		Use:   "pulsectl",
		Short: "CLI para operar un servicio pulsehub",
	}
	root.PersistentFlags().StringVar(&cli.BaseURL, "base-url", envOr("PULSEHUB_URL", "http://localhost:8080"), "URL base del servicio")
	root.PersistentFlags().StringVar(&cli.Owner, "owner", os.Getenv("PULSEHUB_OWNER"), "UUID de owner (cookie phub_owner)")
	root.PersistentFlags().StringVarP(&cli.OutFormat, "output", "o", "json", "formato de salida: json|text")

	root.AddCommand(
		&cobra.Command{
			Use:   "status",
			Short: "Salud del servicio",
			RunE: func(cmd *cobra.Command, args []string) error {
				status, _, body, err := cli.do(http.MethodGet, "/healthz")
				if err != nil {
					return err
				}
				cli.print(status, body)
				return nil
			},
		},
		&cobra.Command{
			Use:   "connect <provider>",
			Short: "Imprime la URL de consentimiento para conectar un proveedor",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				status, hdr, body, err := cli.do(http.MethodGet, "/connect/"+args[0])
				if err != nil {
					return err
				}
				if loc := hdr.Get("Location"); status == http.StatusFound && loc != "" {
					fmt.Println(loc)
					return nil
				}
				cli.print(status, body)
				return fmt.Errorf("respuesta inesperada: %d", status)
			},
		},
		&cobra.Command{
			Use:   "data <provider>",
			Short: "Ejecuta la consulta de datos del proveedor",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				status, _, body, err := cli.do(http.MethodGet, "/data/"+args[0])
				if err != nil {
					return err
				}
				cli.print(status, body)
				if status != http.StatusOK {
					return fmt.Errorf("status %d", status)
				}
				return nil
			},
		},
		&cobra.Command{
			Use:   "disconnect <provider>",
			Short: "Revoca y elimina la conexión con el proveedor",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				status, _, body, err := cli.do(http.MethodGet, "/disconnect/"+args[0])
				if err != nil {
					return err
				}
				cli.print(status, body)
				return nil
			},
		},
	)

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func envOr(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}
