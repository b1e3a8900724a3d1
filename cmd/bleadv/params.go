package main

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/srg/bleadv/internal/advertise"
	"github.com/srg/bleadv/internal/controller"
	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// paramsCmd represents the params command
var paramsCmd = &cobra.Command{
	Use:   "params",
	Short: "Show controller parameters derived from advertise settings",
	Long: `Translate advertise settings and data into the controller parameters the
manager would issue, including the advertising payloads and the legacy HCI
command packets.

Example:
  bleadv params --mode low_latency --tx-power high --uuid 180d --manufacturer 4c:00:02`,
	Args: cobra.NoArgs,
	RunE: runParams,
}

var (
	paramsMode           string
	paramsTxPower        string
	paramsConnectable    bool
	paramsTimeout        int
	paramsUUIDs          []string
	paramsManufacturer   string
	paramsServiceData    string
	paramsIncludeTxPower bool
	paramsScanResponse   bool
	paramsFormat         string
)

func init() {
	paramsCmd.Flags().StringVarP(&paramsMode, "mode", "m", "low_power", "Advertise mode (low_power, balanced, low_latency)")
	paramsCmd.Flags().StringVarP(&paramsTxPower, "tx-power", "p", "medium", "Tx power (ultra_low, low, medium, high)")
	paramsCmd.Flags().BoolVarP(&paramsConnectable, "connectable", "c", false, "Connectable advertising")
	paramsCmd.Flags().IntVar(&paramsTimeout, "timeout", 0, "Advertising timeout in seconds (0 for none)")
	paramsCmd.Flags().StringSliceVarP(&paramsUUIDs, "uuid", "u", nil, "Service UUIDs (16-bit short or full 128-bit)")
	paramsCmd.Flags().StringVar(&paramsManufacturer, "manufacturer", "", "Manufacturer specific data as hex")
	paramsCmd.Flags().StringVar(&paramsServiceData, "service-data", "", "Service data as hex")
	paramsCmd.Flags().BoolVar(&paramsIncludeTxPower, "include-tx-power", false, "Include the tx power level in the payload")
	paramsCmd.Flags().BoolVarP(&paramsScanResponse, "scan-response", "s", false, "Add an empty scan response (device name only)")
	paramsCmd.Flags().StringVarP(&paramsFormat, "format", "f", "", "Output format (table, json); defaults to output_format from config")
}

func runParams(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	format := cfg.OutputFormat
	if paramsFormat != "" {
		format = paramsFormat
	}
	if format != "table" && format != "json" {
		return fmt.Errorf("invalid format '%s': must be one of [table json]", format)
	}

	client, err := paramsClient()
	if err != nil {
		return err
	}

	om, err := describeParams(cfg.Controller.DeviceName, client)
	if err != nil {
		return err
	}

	if format == "json" {
		out, err := json.MarshalIndent(om, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to encode parameters: %w", err)
		}
		_, err = fmt.Fprintln(cmd.OutOrStdout(), string(out))
		return err
	}
	return writeParamsTable(cmd.OutOrStdout(), om)
}

func paramsClient() (*advertise.Client, error) {
	mode, err := advertise.ParseMode(paramsMode)
	if err != nil {
		return nil, err
	}
	txPower, err := advertise.ParseTxPower(paramsTxPower)
	if err != nil {
		return nil, err
	}

	data := &advertise.Data{IncludeTxPower: paramsIncludeTxPower}
	for _, s := range paramsUUIDs {
		u, err := parseServiceUUID(s)
		if err != nil {
			return nil, err
		}
		data.ServiceUUIDs = append(data.ServiceUUIDs, u)
	}
	if paramsManufacturer != "" {
		if data.ManufacturerData, err = parseHex(paramsManufacturer); err != nil {
			return nil, err
		}
	}
	if paramsServiceData != "" {
		if data.ServiceData, err = parseHex(paramsServiceData); err != nil {
			return nil, err
		}
	}

	c := &advertise.Client{
		Settings: advertise.Settings{
			Mode:           mode,
			TxPower:        txPower,
			Connectable:    paramsConnectable,
			TimeoutSeconds: paramsTimeout,
		},
		AdvertiseData: data,
	}
	if paramsScanResponse {
		c.ScanResponse = &advertise.Data{}
	}
	return c, nil
}

// parseServiceUUID accepts full UUIDs and 16-bit short forms expanded on the
// Bluetooth base UUID.
func parseServiceUUID(s string) (uuid.UUID, error) {
	if len(s) == 4 {
		s = "0000" + s + "-0000-1000-8000-00805f9b34fb"
	}
	u, err := uuid.Parse(s)
	if err != nil {
		return uuid.UUID{}, fmt.Errorf("invalid service UUID %q: %w", s, err)
	}
	return u, nil
}

// describeParams lists the translated parameters in issue order.
func describeParams(deviceName string, c *advertise.Client) (*orderedmap.OrderedMap[string, any], error) {
	enable := advertise.EnableParams(c)

	om := orderedmap.New[string, any]()
	om.Set("mode", c.Settings.Mode.String())
	om.Set("interval_ms", advertise.IntervalMillis(c.Settings.Mode))
	om.Set("interval_min_units", enable.MinInterval)
	om.Set("interval_max_units", enable.MaxInterval)
	om.Set("event_type", enable.EventType.String())
	om.Set("channel_map", fmt.Sprintf("0x%02x", enable.ChannelMap))
	om.Set("tx_power_level", int(enable.TxPower))
	om.Set("tx_power_dbm", int(enable.TxPower.DBm()))
	om.Set("timeout_s", enable.TimeoutSeconds)

	var packets []string
	for _, command := range controller.EncodeEnable(enable) {
		pkt, err := controller.Packet(command)
		if err != nil {
			return nil, err
		}
		packets = append(packets, hex.EncodeToString(pkt))
	}

	payloads := []struct {
		key  string
		data *advertise.Data
		scan bool
	}{
		{key: "adv_data", data: c.AdvertiseData},
	}
	if c.ScanResponse != nil {
		payloads = append(payloads, struct {
			key  string
			data *advertise.Data
			scan bool
		}{key: "scan_response", data: c.ScanResponse, scan: true})
	}

	for _, p := range payloads {
		params := advertise.DataParams(p.data, p.scan)
		payload, err := controller.BuildPayload(deviceName, enable.TxPower, params)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", p.key, err)
		}
		om.Set(p.key, hex.EncodeToString(payload))

		command, err := controller.EncodeAdvertisingData(deviceName, enable.TxPower, params)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", p.key, err)
		}
		pkt, err := controller.Packet(command)
		if err != nil {
			return nil, err
		}
		packets = append(packets, hex.EncodeToString(pkt))
	}

	om.Set("hci", packets)
	return om, nil
}

func writeParamsTable(out io.Writer, om *orderedmap.OrderedMap[string, any]) error {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	for pair := om.Oldest(); pair != nil; pair = pair.Next() {
		if packets, ok := pair.Value.([]string); ok {
			for i, p := range packets {
				key := ""
				if i == 0 {
					key = pair.Key
				}
				fmt.Fprintf(w, "%s\t%s\n", key, p)
			}
			continue
		}
		fmt.Fprintf(w, "%s\t%v\n", pair.Key, pair.Value)
	}
	return w.Flush()
}
