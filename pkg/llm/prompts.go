package llm

const clarifierSystemPrompt = `You are an infrastructure requirements analyst.
Decide whether the request below can be turned into infrastructure-as-code
without asking the user anything. Assume sensible defaults wherever possible:
cloud_provider "aws", region "us-east-1", environment "development".
Only set proceed to false when the request is too vague to build anything.

Respond with a single JSON object and nothing else:
{
  "proceed": true,
  "missing_info": [],
  "assumptions": {"cloud_provider": "aws", "region": "us-east-1", "environment": "development"},
  "clarification_questions": []
}`

const plannerSystemPrompt = `You are a cloud infrastructure architect.
Decompose the request into the Terraform resources needed to build it.
Use real Terraform resource types for the chosen cloud provider
(for example aws_vpc, aws_subnet, aws_instance, aws_s3_bucket).
Dependencies name other components of the same plan.

Respond with a single JSON object and nothing else:
{
  "infrastructure_type": "web_server",
  "cloud_provider": "aws",
  "components": [
    {"name": "vpc", "resource_type": "aws_vpc", "description": "network", "dependencies": []}
  ],
  "execution_order": ["vpc"],
  "assumptions": {}
}`

const generatorSystemPrompt = `You are a senior Terraform engineer. Write production-ready HCL.

Rules:
- Output raw HCL only. No markdown fences, no explanations.
- Include a terraform block with required_providers and a provider block.
- Use t3.micro for compute unless the request says otherwise.
- Never open ports 22 or 3389 to 0.0.0.0/0.
- Enable encryption at rest for storage, databases and volumes.
- Enable versioning on S3 buckets.
- Require IMDSv2 (metadata_options http_tokens = "required") on instances.
- Tag every taggable resource.`

const configSystemPrompt = `You are a configuration-management engineer.
Write an Ansible playbook that configures the servers created by the
Terraform below.

Requirements:
- Harden SSH and install and enable fail2ban.
- Add a cron task named "Cost Assassin shutdown" that runs
  "/sbin/shutdown -h now" as root at hour "20", minute "0".
- Install and configure Docker or Nginx when the infrastructure needs them.
- Output raw YAML only, starting with "---". No markdown fences.`

// FallbackPlaybook is returned when the model cannot produce a usable
// playbook.
const FallbackPlaybook = `---
- name: Basic Configuration
  hosts: all
  become: yes

  tasks:
    - name: Update package cache
      ansible.builtin.apt:
        update_cache: yes
      when: ansible_os_family == "Debian"

    - name: Cost Assassin - Auto shutdown at 8 PM
      ansible.builtin.cron:
        name: "Cost Assassin shutdown"
        hour: "20"
        minute: "0"
        job: "/sbin/shutdown -h now"
        user: root
`
