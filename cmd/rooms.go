package cmd

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/BioHazard786/huddle/internal/config"
	"github.com/BioHazard786/huddle/internal/dns"
	"github.com/BioHazard786/huddle/internal/registry"
	"github.com/BioHazard786/huddle/internal/ui"
)

var roomsCmd = &cobra.Command{
	Use:   "rooms",
	Short: "List the registry's active rooms",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(config.Options{ServerURL: flagServer})
		if err != nil {
			return err
		}

		rooms, err := fetchRooms(cmd, cfg.HTTPBaseURL()+"/api/rooms")
		if err != nil {
			return err
		}
		ui.RenderRooms(os.Stdout, rooms)
		return nil
	},
}

func init() {
	roomsCmd.Flags().StringVarP(&flagServer, "server", "s", "", "registry websocket URL (env HUDDLE_SERVER)")
	rootCmd.AddCommand(roomsCmd)
}

func fetchRooms(cmd *cobra.Command, url string) ([]registry.RoomInfo, error) {
	client := &http.Client{
		Timeout:   10 * time.Second,
		Transport: &http.Transport{DialContext: dns.DialContext},
	}

	req, err := http.NewRequestWithContext(cmd.Context(), http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch rooms: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch rooms: %s", resp.Status)
	}

	var rooms []registry.RoomInfo
	if err := json.NewDecoder(resp.Body).Decode(&rooms); err != nil {
		return nil, fmt.Errorf("decode rooms: %w", err)
	}
	return rooms, nil
}
