package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/nimbusapi/nimbus-sdk-go/internal/config"
	"github.com/nimbusapi/nimbus-sdk-go/pkg/appconfig"
	"github.com/nimbusapi/nimbus-sdk-go/pkg/batch"
	"github.com/nimbusapi/nimbus-sdk-go/pkg/core"
	"github.com/nimbusapi/nimbus-sdk-go/pkg/queues"
)

var (
	outputJSON bool
	labelFlag  string
	keyFilter  string
	poolID     string
)

var rootCmd = &cobra.Command{
	Use:   "nimbus",
	Short: "Nimbus service CLI",
	Long: `A CLI for the Nimbus cloud services: configuration settings,
batch jobs, and message queues.

Credentials and the endpoint are read from the environment (or a .env
file): NIMBUS_ENDPOINT, NIMBUS_ACCESS_KEY_ID, NIMBUS_ACCESS_KEY_SECRET.`,
}

var settingsCmd = &cobra.Command{
	Use:   "settings",
	Short: "Manage configuration settings",
}

var settingsGetCmd = &cobra.Command{
	Use:   "get [key]",
	Short: "Get a configuration setting",
	Args:  cobra.ExactArgs(1),
	RunE:  runSettingsGet,
}

var settingsSetCmd = &cobra.Command{
	Use:   "set [key] [value]",
	Short: "Create or replace a configuration setting",
	Args:  cobra.ExactArgs(2),
	RunE:  runSettingsSet,
}

var settingsDeleteCmd = &cobra.Command{
	Use:   "delete [key]",
	Short: "Delete a configuration setting",
	Args:  cobra.ExactArgs(1),
	RunE:  runSettingsDelete,
}

var settingsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List configuration settings",
	Args:  cobra.NoArgs,
	RunE:  runSettingsList,
}

var jobsCmd = &cobra.Command{
	Use:   "jobs",
	Short: "Manage batch jobs",
}

var jobsCreateCmd = &cobra.Command{
	Use:   "create [id]",
	Short: "Create a batch job",
	Args:  cobra.ExactArgs(1),
	RunE:  runJobsCreate,
}

var jobsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List batch jobs",
	Args:  cobra.NoArgs,
	RunE:  runJobsList,
}

var jobsDeleteCmd = &cobra.Command{
	Use:   "delete [id]",
	Short: "Delete a batch job and wait for the deletion to finish",
	Args:  cobra.ExactArgs(1),
	RunE:  runJobsDelete,
}

var jobsTerminateCmd = &cobra.Command{
	Use:   "terminate [id]",
	Short: "Terminate a batch job and wait for it to complete",
	Args:  cobra.ExactArgs(1),
	RunE:  runJobsTerminate,
}

var queuesCmd = &cobra.Command{
	Use:   "queues",
	Short: "Manage message queues",
}

var queuesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List queues",
	Args:  cobra.NoArgs,
	RunE:  runQueuesList,
}

var queuesSendCmd = &cobra.Command{
	Use:   "send [queue] [body]",
	Short: "Send a message to a queue",
	Args:  cobra.ExactArgs(2),
	RunE:  runQueuesSend,
}

var queuesReceiveCmd = &cobra.Command{
	Use:   "receive [queue]",
	Short: "Receive and complete the next message from a queue",
	Args:  cobra.ExactArgs(1),
	RunE:  runQueuesReceive,
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&outputJSON, "json", false, "output in JSON format")

	settingsGetCmd.Flags().StringVar(&labelFlag, "label", "", "setting label")
	settingsSetCmd.Flags().StringVar(&labelFlag, "label", "", "setting label")
	settingsDeleteCmd.Flags().StringVar(&labelFlag, "label", "", "setting label")
	settingsListCmd.Flags().StringVar(&keyFilter, "key", "", "key filter (trailing * wildcard)")
	settingsListCmd.Flags().StringVar(&labelFlag, "label", "", "label filter (trailing * wildcard)")
	jobsCreateCmd.Flags().StringVar(&poolID, "pool", "default", "pool the job runs in")

	rootCmd.AddCommand(settingsCmd)
	settingsCmd.AddCommand(settingsGetCmd)
	settingsCmd.AddCommand(settingsSetCmd)
	settingsCmd.AddCommand(settingsDeleteCmd)
	settingsCmd.AddCommand(settingsListCmd)

	rootCmd.AddCommand(jobsCmd)
	jobsCmd.AddCommand(jobsCreateCmd)
	jobsCmd.AddCommand(jobsListCmd)
	jobsCmd.AddCommand(jobsDeleteCmd)
	jobsCmd.AddCommand(jobsTerminateCmd)

	rootCmd.AddCommand(queuesCmd)
	queuesCmd.AddCommand(queuesListCmd)
	queuesCmd.AddCommand(queuesSendCmd)
	queuesCmd.AddCommand(queuesReceiveCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func loadCredential() (string, *core.KeyCredential, error) {
	cfg, err := config.Load()
	if err != nil {
		return "", nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return "", nil, fmt.Errorf("invalid config: %w", err)
	}
	cred, err := core.NewKeyCredential(cfg.AccessKeyID, cfg.AccessKeySecret)
	if err != nil {
		return "", nil, fmt.Errorf("invalid credential: %w", err)
	}
	return cfg.Endpoint, cred, nil
}

func settingsClient() (*appconfig.Client, error) {
	endpoint, cred, err := loadCredential()
	if err != nil {
		return nil, err
	}
	return appconfig.NewClient(endpoint, cred, nil)
}

func jobsClient() (*batch.Client, error) {
	endpoint, cred, err := loadCredential()
	if err != nil {
		return nil, err
	}
	return batch.NewClient(endpoint, cred, nil)
}

func queuesClient() (*queues.Client, error) {
	endpoint, cred, err := loadCredential()
	if err != nil {
		return nil, err
	}
	return queues.NewClient(endpoint, cred, nil)
}

func printJSON(v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(data))
	return nil
}

func runSettingsGet(cmd *cobra.Command, args []string) error {
	client, err := settingsClient()
	if err != nil {
		return err
	}

	setting, err := client.GetSetting(context.Background(), args[0], &appconfig.GetSettingOptions{Label: labelFlag})
	if err != nil {
		return fmt.Errorf("failed to get setting: %w", err)
	}

	if outputJSON {
		return printJSON(setting)
	}
	renderSettings([]appconfig.Setting{setting})
	return nil
}

func runSettingsSet(cmd *cobra.Command, args []string) error {
	client, err := settingsClient()
	if err != nil {
		return err
	}

	setting, err := client.SetSetting(context.Background(), appconfig.Setting{
		Key:   args[0],
		Label: labelFlag,
		Value: args[1],
	}, nil)
	if err != nil {
		return fmt.Errorf("failed to set setting: %w", err)
	}

	if outputJSON {
		return printJSON(setting)
	}
	renderSettings([]appconfig.Setting{setting})
	return nil
}

func runSettingsDelete(cmd *cobra.Command, args []string) error {
	client, err := settingsClient()
	if err != nil {
		return err
	}

	if err := client.DeleteSetting(context.Background(), args[0], &appconfig.DeleteSettingOptions{Label: labelFlag}); err != nil {
		return fmt.Errorf("failed to delete setting: %w", err)
	}

	if !outputJSON {
		fmt.Printf("Deleted setting %q\n", args[0])
	}
	return nil
}

func runSettingsList(cmd *cobra.Command, args []string) error {
	client, err := settingsClient()
	if err != nil {
		return err
	}

	pager := client.NewListSettingsPager(&appconfig.ListSettingsOptions{
		KeyFilter:   keyFilter,
		LabelFilter: labelFlag,
	})
	settings, err := pager.All(context.Background())
	if err != nil {
		return fmt.Errorf("failed to list settings: %w", err)
	}

	if outputJSON {
		return printJSON(settings)
	}
	renderSettings(settings)
	return nil
}

func renderSettings(settings []appconfig.Setting) {
	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Key", "Label", "Value", "Locked", "Last Modified"})
	for _, s := range settings {
		table.Append([]string{
			s.Key,
			s.Label,
			s.Value,
			fmt.Sprintf("%t", s.ReadOnly),
			s.LastModified.Format(time.RFC3339),
		})
	}
	table.Render()
}

func runJobsCreate(cmd *cobra.Command, args []string) error {
	client, err := jobsClient()
	if err != nil {
		return err
	}

	job, err := client.CreateJob(context.Background(), batch.Job{
		ID:     args[0],
		PoolID: poolID,
	})
	if err != nil {
		return fmt.Errorf("failed to create job: %w", err)
	}

	if outputJSON {
		return printJSON(job)
	}
	renderJobs([]batch.Job{job})
	return nil
}

func runJobsList(cmd *cobra.Command, args []string) error {
	client, err := jobsClient()
	if err != nil {
		return err
	}

	jobs, err := client.NewListJobsPager().All(context.Background())
	if err != nil {
		return fmt.Errorf("failed to list jobs: %w", err)
	}

	if outputJSON {
		return printJSON(jobs)
	}
	renderJobs(jobs)
	return nil
}

func runJobsDelete(cmd *cobra.Command, args []string) error {
	client, err := jobsClient()
	if err != nil {
		return err
	}
	ctx := context.Background()

	poller, err := client.BeginDeleteJob(ctx, args[0], nil)
	if err != nil {
		return fmt.Errorf("failed to delete job: %w", err)
	}
	if _, err := poller.PollUntilDone(ctx); err != nil {
		return fmt.Errorf("job deletion failed: %w", err)
	}

	if !outputJSON {
		fmt.Printf("Deleted job %q\n", args[0])
	}
	return nil
}

func runJobsTerminate(cmd *cobra.Command, args []string) error {
	client, err := jobsClient()
	if err != nil {
		return err
	}
	ctx := context.Background()

	poller, err := client.BeginTerminateJob(ctx, args[0], nil)
	if err != nil {
		return fmt.Errorf("failed to terminate job: %w", err)
	}
	job, err := poller.PollUntilDone(ctx)
	if err != nil {
		return fmt.Errorf("job termination failed: %w", err)
	}

	if outputJSON {
		return printJSON(job)
	}
	renderJobs([]batch.Job{job})
	return nil
}

func renderJobs(jobs []batch.Job) {
	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"ID", "Pool", "State", "Created", "Last Transition"})
	for _, j := range jobs {
		table.Append([]string{
			j.ID,
			j.PoolID,
			string(j.State),
			j.CreationTime.Format(time.RFC3339),
			j.StateTransitionTime.Format(time.RFC3339),
		})
	}
	table.Render()
}

func runQueuesList(cmd *cobra.Command, args []string) error {
	client, err := queuesClient()
	if err != nil {
		return err
	}

	list, err := client.NewListQueuesPager().All(context.Background())
	if err != nil {
		return fmt.Errorf("failed to list queues: %w", err)
	}

	if outputJSON {
		return printJSON(list)
	}

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Name", "Messages", "Created"})
	for _, q := range list {
		table.Append([]string{
			q.Name,
			fmt.Sprintf("%d", q.MessageCount),
			q.CreatedAt.Format(time.RFC3339),
		})
	}
	table.Render()
	return nil
}

func runQueuesSend(cmd *cobra.Command, args []string) error {
	client, err := queuesClient()
	if err != nil {
		return err
	}

	sent, err := client.SendMessage(context.Background(), args[0], queues.Message{
		Body:        []byte(args[1]),
		ContentType: "text/plain",
	})
	if err != nil {
		return fmt.Errorf("failed to send message: %w", err)
	}

	if outputJSON {
		return printJSON(sent)
	}
	fmt.Printf("Sent message %s (sequence %d)\n", sent.ID, sent.SequenceNumber)
	return nil
}

func runQueuesReceive(cmd *cobra.Command, args []string) error {
	client, err := queuesClient()
	if err != nil {
		return err
	}
	ctx := context.Background()

	msg, err := client.ReceiveMessage(ctx, args[0])
	if err != nil {
		return fmt.Errorf("failed to receive message: %w", err)
	}
	if msg == nil {
		if !outputJSON {
			fmt.Println("Queue is empty")
		}
		return nil
	}

	if err := client.CompleteMessage(ctx, args[0], msg); err != nil {
		return fmt.Errorf("failed to complete message: %w", err)
	}

	if outputJSON {
		return printJSON(msg)
	}
	fmt.Printf("Received message %s: %s\n", msg.ID, string(msg.Body))
	return nil
}
